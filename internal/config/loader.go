package config

import (
	"context"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/turtacn/authstore/pkg/constants"
	"github.com/turtacn/authstore/pkg/errors"
	"github.com/turtacn/authstore/pkg/logger"
)

// EnvPrefix is prepended to every environment variable override, e.g. AUTHSTORE_DATABASE_HOST.
const EnvPrefix = "AUTHSTORE"

// Loader reads configuration from file and environment and reloads the log level on change.
type Loader struct {
	v   *viper.Viper
	log logger.Logger
}

// NewLoader creates a Loader. An explicit path overrides the default search locations.
func NewLoader(path string, log logger.Logger) *Loader {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/authstore/")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v, log: log}
}

// Load reads, unmarshals and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.ErrConfiguration("failed to read config file").WithCause(err)
		}
		l.log.Info(context.Background(), "No config file found, using defaults and environment")
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.ErrConfiguration("failed to unmarshal config").WithCause(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// WatchLogLevel applies log.level changes from the config file to target without a restart.
func (l *Loader) WatchLogLevel(target logger.Logger) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		level := constants.ParseLogLevel(l.v.GetString("log.level"))
		if level == target.GetLevel() {
			return
		}
		target.SetLevel(level)
		l.log.Info(context.Background(), "Log level reloaded",
			logger.String("file", e.Name),
			logger.String("level", level.String()),
		)
	})
	l.v.WatchConfig()
}

// LoadConfig is a convenience wrapper reading the default config locations.
func LoadConfig(log logger.Logger) (*Config, error) {
	return NewLoader("", log).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.grpc_port", 9090)
	v.SetDefault("server.health_interval", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "authstore")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "authstore")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 25)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.max_conn_idle_time", 10*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.serializable_writes", true)
	v.SetDefault("database.slow_query_threshold", 100*time.Millisecond)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addresses", []string{"localhost:6379"})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.key_prefix", "authstore:")

	v.SetDefault("vault.address", "")
	v.SetDefault("vault.token", "")
	v.SetDefault("vault.secret_path", "authstore/cipher")
	v.SetDefault("vault.mount_path", "secret")
	v.SetDefault("vault.secret_key", "token_cipher_secret")
	v.SetDefault("vault.timeout", 5*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "authstore.lifecycle")
	v.SetDefault("kafka.required_acks", 1)
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", 50*time.Millisecond)
	v.SetDefault("kafka.write_timeout", 5*time.Second)

	v.SetDefault("crypto.secret_source", "static")
	v.SetDefault("crypto.secret", "")
	v.SetDefault("crypto.hash_algorithm", "sha256")
	v.SetDefault("crypto.timeout", constants.DefaultCryptoTimeout)
	v.SetDefault("crypto.overall_timeout", constants.DefaultCryptoTimeout)

	v.SetDefault("tokens.access_token_ttl", constants.DefaultAccessTokenTTL)
	v.SetDefault("tokens.refresh_token_ttl", constants.DefaultRefreshTokenTTL)
	v.SetDefault("tokens.authorization_code_ttl", constants.DefaultAuthorizationCodeTTL)

	v.SetDefault("signing.key_type", "EC")
	v.SetDefault("signing.ec_curve", "P-256")
	v.SetDefault("signing.rsa_bits", 2048)
	v.SetDefault("signing.issuer_scheme", "https")

	v.SetDefault("rotation.enabled", true)
	v.SetDefault("rotation.interval", constants.DefaultRotationInterval)
	v.SetDefault("rotation.rotation_period", time.Duration(0))
	v.SetDefault("rotation.deprecation_period", time.Duration(0))
	v.SetDefault("rotation.lock_backend", "database")
	v.SetDefault("rotation.lock_min_hold", constants.DefaultLockMinHold)
	v.SetDefault("rotation.lock_max_hold", constants.DefaultLockMaxHold)
	v.SetDefault("rotation.purge_expired", true)

	v.SetDefault("store.save_timeout", constants.DefaultSaveTimeout)
	v.SetDefault("store.read_timeout", constants.DefaultReadTimeout)
	v.SetDefault("store.accessibility_cache_ttl", constants.DefaultAccessibilityCacheTTL)
	v.SetDefault("store.record_cache_enabled", false)
	v.SetDefault("store.record_cache_ttl", 5*time.Minute)
	v.SetDefault("store.state_cookie_name", constants.DefaultStateCookieName)
	v.SetDefault("store.state_cookie_max_age", constants.DefaultStateCookieMaxAge)
	v.SetDefault("store.state_cookie_secure", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "authstore")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sampling_rate", 1.0)
}
