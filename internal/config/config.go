package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
)

// Config holds the application's configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Crypto   CryptoConfig   `mapstructure:"crypto"`
	Tokens   TokensConfig   `mapstructure:"tokens"`
	Signing  SigningConfig  `mapstructure:"signing"`
	Rotation RotationConfig `mapstructure:"rotation"`
	Store    StoreConfig    `mapstructure:"store"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Environment    string        `mapstructure:"environment"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	// GRPCPort serves the gRPC health service; 0 disables it.
	GRPCPort int `mapstructure:"grpc_port"`
	// HealthInterval is how often the gRPC health statuses are refreshed.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// Address returns the listen address of the HTTP server.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GRPCAddress returns the listen address of the gRPC server.
func (c ServerConfig) GRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.GRPCPort)
}

type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	// SerializableWrites runs save transactions at serializable isolation.
	SerializableWrites bool `mapstructure:"serializable_writes"`
	// SlowQueryThreshold logs statements slower than this.
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
}

// GetDSN builds the driver specific connection string.
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Database
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

type VaultConfig struct {
	Address   string        `mapstructure:"address"`
	Token     string        `mapstructure:"token"`
	MountPath string        `mapstructure:"mount_path"`
	// SecretPath is the KV v2 path holding the cipher secret.
	SecretPath string        `mapstructure:"secret_path"`
	SecretKey  string        `mapstructure:"secret_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	RequiredAcks int           `mapstructure:"required_acks"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type CryptoConfig struct {
	// SecretSource is "static" or "vault".
	SecretSource  string        `mapstructure:"secret_source"`
	Secret        string        `mapstructure:"secret"`
	HashAlgorithm string        `mapstructure:"hash_algorithm"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// OverallTimeout bounds a whole parallel encrypt or decrypt batch.
	OverallTimeout time.Duration `mapstructure:"overall_timeout"`
}

type TokensConfig struct {
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	AuthorizationCodeTTL time.Duration `mapstructure:"authorization_code_ttl"`
}

type SigningConfig struct {
	// KeyType is "EC" or "RSA".
	KeyType      string `mapstructure:"key_type"`
	ECCurve      string `mapstructure:"ec_curve"`
	RSABits      int    `mapstructure:"rsa_bits"`
	IssuerScheme string `mapstructure:"issuer_scheme"`
}

type RotationConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Interval          time.Duration `mapstructure:"interval"`
	RotationPeriod    time.Duration `mapstructure:"rotation_period"`
	DeprecationPeriod time.Duration `mapstructure:"deprecation_period"`
	// LockBackend is "database" or "redis".
	LockBackend string        `mapstructure:"lock_backend"`
	LockMinHold time.Duration `mapstructure:"lock_min_hold"`
	LockMaxHold time.Duration `mapstructure:"lock_max_hold"`
	// PurgeExpired removes authorization records whose tokens all expired.
	PurgeExpired bool `mapstructure:"purge_expired"`
}

// Periods returns the rotation and deprecation periods, deriving them from the
// access token TTL when they are not configured explicitly.
func (c RotationConfig) Periods(accessTTL time.Duration) (rotation, deprecation time.Duration) {
	if accessTTL <= 0 {
		accessTTL = constants.DefaultAccessTokenTTL
	}
	rotation = c.RotationPeriod
	if rotation <= 0 {
		rotation = constants.RotationPeriodMultiplier * accessTTL
	}
	deprecation = c.DeprecationPeriod
	if deprecation <= 0 {
		deprecation = constants.DeprecationPeriodMultiplier * accessTTL
	}
	return rotation, deprecation
}

type StoreConfig struct {
	SaveTimeout           time.Duration `mapstructure:"save_timeout"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	AccessibilityCacheTTL time.Duration `mapstructure:"accessibility_cache_ttl"`
	RecordCacheEnabled    bool          `mapstructure:"record_cache_enabled"`
	RecordCacheTTL        time.Duration `mapstructure:"record_cache_ttl"`
	StateCookieName       string        `mapstructure:"state_cookie_name"`
	StateCookieMaxAge     time.Duration `mapstructure:"state_cookie_max_age"`
	StateCookieSecure     bool          `mapstructure:"state_cookie_secure"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Endpoint     string  `mapstructure:"endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	ServiceName  string  `mapstructure:"service_name"`
	Environment  string  `mapstructure:"environment"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

// Validate checks for essential configuration values.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	switch c.Crypto.SecretSource {
	case "static":
		if c.Crypto.Secret == "" {
			problems = append(problems, "crypto.secret is required for the static secret source")
		}
	case "vault":
		if c.Vault.Address == "" || c.Vault.SecretPath == "" {
			problems = append(problems, "vault.address and vault.secret_path are required for the vault secret source")
		}
	default:
		problems = append(problems, fmt.Sprintf("crypto.secret_source %q is not supported", c.Crypto.SecretSource))
	}

	switch strings.ToLower(c.Crypto.HashAlgorithm) {
	case "sha256", "sha512":
	default:
		problems = append(problems, fmt.Sprintf("crypto.hash_algorithm %q is not supported", c.Crypto.HashAlgorithm))
	}

	switch strings.ToUpper(c.Signing.KeyType) {
	case "EC", "RSA":
	default:
		problems = append(problems, fmt.Sprintf("signing.key_type %q is not supported", c.Signing.KeyType))
	}

	switch c.Rotation.LockBackend {
	case "database":
	case "redis":
		if !c.Redis.Enabled {
			problems = append(problems, "rotation.lock_backend redis requires redis.enabled")
		}
	default:
		problems = append(problems, fmt.Sprintf("rotation.lock_backend %q is not supported", c.Rotation.LockBackend))
	}

	if c.Rotation.LockMinHold > c.Rotation.LockMaxHold {
		problems = append(problems, "rotation.lock_min_hold must not exceed rotation.lock_max_hold")
	}
	if c.Tokens.AccessTokenTTL <= 0 {
		problems = append(problems, "tokens.access_token_ttl must be positive")
	}
	if c.Store.RecordCacheEnabled && !c.Redis.Enabled {
		problems = append(problems, "store.record_cache_enabled requires redis.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required when kafka is enabled")
	}

	if len(problems) > 0 {
		return errors.ErrConfiguration(strings.Join(problems, "; "))
	}
	return nil
}
