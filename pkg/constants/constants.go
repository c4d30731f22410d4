// Package constants defines shared constants for the authorization store service.
package constants

import "time"

// ================================================================================
// Token Types
// ================================================================================

// TokenType identifies which lookup key of an authorization record a token value belongs to.
type TokenType string

const (
	// TokenTypeUnspecified searches every lookup key of a record.
	TokenTypeUnspecified TokenType = ""
	// TokenTypeState is the opaque anti-CSRF value of an authorization request.
	TokenTypeState TokenType = "state"
	// TokenTypeCode is the authorization code.
	TokenTypeCode TokenType = "code"
	// TokenTypeAccess is the access token.
	TokenTypeAccess TokenType = "access_token"
	// TokenTypeRefresh is the refresh token.
	TokenTypeRefresh TokenType = "refresh_token"
)

// ParseTokenType converts a protocol token-type hint into a TokenType.
// Unknown hints map to TokenTypeUnspecified.
func ParseTokenType(hint string) TokenType {
	switch TokenType(hint) {
	case TokenTypeState, TokenTypeCode, TokenTypeAccess, TokenTypeRefresh:
		return TokenType(hint)
	case "authorization_code":
		return TokenTypeCode
	default:
		return TokenTypeUnspecified
	}
}

// AccessTokenTypeBearer is the only access token type issued.
const AccessTokenTypeBearer = "Bearer"

// ================================================================================
// Defaults
// ================================================================================

const (
	// DefaultAccessTokenTTL is the access token lifetime when none is configured.
	DefaultAccessTokenTTL = 1 * time.Hour
	// DefaultRefreshTokenTTL is the refresh token lifetime when none is configured.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	// DefaultAuthorizationCodeTTL is the authorization code lifetime when none is configured.
	DefaultAuthorizationCodeTTL = 5 * time.Minute

	// RotationPeriodMultiplier derives the rotation period from the access token TTL.
	RotationPeriodMultiplier = 4
	// DeprecationPeriodMultiplier derives the deprecation period from the access token TTL.
	DeprecationPeriodMultiplier = 1

	// DefaultRotationInterval is how often the rotation scheduler ticks.
	DefaultRotationInterval = 30 * time.Minute
	// DefaultLockMinHold keeps the rotation lock for at least this long.
	DefaultLockMinHold = 5 * time.Minute
	// DefaultLockMaxHold releases a stale rotation lock after this long.
	DefaultLockMaxHold = 20 * time.Minute

	// DefaultSaveTimeout bounds a save transaction.
	DefaultSaveTimeout = 3 * time.Second
	// DefaultReadTimeout bounds lookups and deletes.
	DefaultReadTimeout = 2 * time.Second
	// DefaultCryptoTimeout bounds each parallel encrypt or decrypt task.
	DefaultCryptoTimeout = 2 * time.Second

	// DefaultAccessibilityCacheTTL is how long a client accessibility snapshot is trusted.
	DefaultAccessibilityCacheTTL = 30 * time.Second

	// DefaultStateCookieMaxAge is the lifetime of the mirrored state cookie.
	DefaultStateCookieMaxAge = 365 * 24 * time.Hour
	// DefaultStateCookieName is the cookie the authorization state is mirrored into.
	DefaultStateCookieName = "X-Authorization-State"
)

// RotationLockName is the cluster-wide lock guarding a rotation tick.
const RotationLockName = "signing_key_rotation"

// ================================================================================
// Log Levels
// ================================================================================

// LogLevel is the severity of a log entry.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// String returns the lowercase level name understood by the zap level parser.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "debug"
	case LogLevelInfo:
		return "info"
	case LogLevelWarn:
		return "warn"
	case LogLevelError:
		return "error"
	case LogLevelFatal:
		return "fatal"
	default:
		return "info"
	}
}

// ParseLogLevel converts a configured level name into a LogLevel, defaulting to info.
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "debug", "DEBUG":
		return LogLevelDebug
	case "warn", "WARN", "warning":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	case "fatal", "FATAL":
		return LogLevelFatal
	default:
		return LogLevelInfo
	}
}

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type of keys stored in request contexts.
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyTenantID  ContextKey = "tenant_id"
	ContextKeyClientID  ContextKey = "client_id"
)

// ================================================================================
// Error Codes
// ================================================================================

// ErrorCode is the machine readable code of an application error.
type ErrorCode string

const (
	ErrCodeValidation            ErrorCode = "validation_error"
	ErrCodeNotFound              ErrorCode = "not_found"
	ErrCodePersistenceContention ErrorCode = "persistence_contention"
	ErrCodeCryptoFailure         ErrorCode = "crypto_failure"
	ErrCodeNoSigningKey          ErrorCode = "no_signing_key"
	ErrCodeConfiguration         ErrorCode = "configuration_error"
	ErrCodeUnavailable           ErrorCode = "service_unavailable"
	ErrCodeInternal              ErrorCode = "internal_error"
)

// ================================================================================
// Event Types
// ================================================================================

// EventType names a lifecycle event published to the event bus.
type EventType string

const (
	EventKeyGenerated          EventType = "signing_key.generated"
	EventKeyInvalidated        EventType = "signing_key.invalidated"
	EventAuthorizationRemoved  EventType = "authorization.removed"
	EventAuthorizationsExpired EventType = "authorization.expired_purged"
)
