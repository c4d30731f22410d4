package models

import (
	"time"
)

// OAuth2Token is a single token value held by an authorization record together with
// its validity window and free-form metadata.
// OAuth2Token 是授权记录持有的单个令牌值及其有效期和元数据。
type OAuth2Token struct {
	// Value is the plaintext token value. It is only ever held in memory.
	// Value 是明文令牌值，仅保存在内存中。
	Value     string
	IssuedAt  *time.Time
	ExpiresAt *time.Time
	Metadata  map[string]interface{}
}

// AccessToken is the access token of an authorization record.
// AccessToken 是授权记录的访问令牌。
type AccessToken struct {
	OAuth2Token
	// TokenType is always Bearer.
	TokenType string
	// Scopes are the scopes granted to this access token.
	Scopes []string
}

// AuthorizationRecord is the durable trace of one authorization grant. It is
// identified by its ID and, naturally, by the (client, principal, grant type) triple.
// AuthorizationRecord 是一次授权的持久化记录，由 ID 以及
// (client, principal, grant type) 三元组标识。
type AuthorizationRecord struct {
	ID                 string
	RegisteredClientID string
	PrincipalName      string
	GrantType          string
	TenantID           string

	// State is the opaque anti-CSRF value of the authorization request.
	// State 是授权请求的防 CSRF 不透明值。
	State string

	AuthorizationCode *OAuth2Token
	AccessToken       *AccessToken
	RefreshToken      *OAuth2Token

	AuthorizedScopes []string
	Attributes       map[string]interface{}
}

// NaturalKey returns the (client, principal, grant type) triple.
func (r *AuthorizationRecord) NaturalKey() NaturalKey {
	return NaturalKey{
		RegisteredClientID: r.RegisteredClientID,
		PrincipalName:      r.PrincipalName,
		GrantType:          r.GrantType,
	}
}

// NaturalKey uniquely identifies an authorization record besides its ID.
type NaturalKey struct {
	RegisteredClientID string
	PrincipalName      string
	GrantType          string
}

// AuthorizationEntity is the persisted form of an AuthorizationRecord. Token values are
// stored encrypted; the *_hash columns hold the hex digest of the plaintext and serve as
// lookup keys. State is stored in plaintext.
// AuthorizationEntity 是 AuthorizationRecord 的持久化形式。令牌值加密存储，
// *_hash 列保存明文摘要并用于查找。State 以明文存储。
type AuthorizationEntity struct {
	ID                 string `gorm:"primaryKey;size:64"`
	RegisteredClientID string `gorm:"size:128;not null;uniqueIndex:idx_authz_natural_key,priority:1"`
	PrincipalName      string `gorm:"size:255;not null;uniqueIndex:idx_authz_natural_key,priority:2"`
	GrantType          string `gorm:"size:64;not null;uniqueIndex:idx_authz_natural_key,priority:3"`
	TenantID           string `gorm:"size:64;not null;index"`
	AuthorizedScopes   string `gorm:"type:text"`
	Attributes         string `gorm:"type:text"`

	State string `gorm:"size:500;index"`

	AuthorizationCodeValue     string `gorm:"type:text"`
	AuthorizationCodeHash      string `gorm:"size:128;index"`
	AuthorizationCodeIssuedAt  *time.Time
	AuthorizationCodeExpiresAt *time.Time
	AuthorizationCodeMetadata  string `gorm:"type:text"`

	AccessTokenValue     string `gorm:"type:text"`
	AccessTokenHash      string `gorm:"size:128;index"`
	AccessTokenIssuedAt  *time.Time
	AccessTokenExpiresAt *time.Time
	AccessTokenMetadata  string `gorm:"type:text"`
	AccessTokenType      string `gorm:"size:32"`
	AccessTokenScopes    string `gorm:"type:text"`

	RefreshTokenValue     string `gorm:"type:text"`
	RefreshTokenHash      string `gorm:"size:128;index"`
	RefreshTokenIssuedAt  *time.Time
	RefreshTokenExpiresAt *time.Time
	RefreshTokenMetadata  string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name.
func (AuthorizationEntity) TableName() string {
	return "oauth2_authorizations"
}

// NaturalKey returns the (client, principal, grant type) triple.
func (e *AuthorizationEntity) NaturalKey() NaturalKey {
	return NaturalKey{
		RegisteredClientID: e.RegisteredClientID,
		PrincipalName:      e.PrincipalName,
		GrantType:          e.GrantType,
	}
}

// MergeFrom overlays the non-empty fields of incoming onto e. Empty incoming fields
// keep the stored values and the stored ID always wins.
func (e *AuthorizationEntity) MergeFrom(incoming *AuthorizationEntity) {
	setString(&e.TenantID, incoming.TenantID)
	setString(&e.AuthorizedScopes, incoming.AuthorizedScopes)
	setString(&e.Attributes, incoming.Attributes)
	setString(&e.State, incoming.State)

	if incoming.AuthorizationCodeValue != "" {
		e.AuthorizationCodeValue = incoming.AuthorizationCodeValue
		e.AuthorizationCodeHash = incoming.AuthorizationCodeHash
	}
	setTime(&e.AuthorizationCodeIssuedAt, incoming.AuthorizationCodeIssuedAt)
	setTime(&e.AuthorizationCodeExpiresAt, incoming.AuthorizationCodeExpiresAt)
	setString(&e.AuthorizationCodeMetadata, incoming.AuthorizationCodeMetadata)

	if incoming.AccessTokenValue != "" {
		e.AccessTokenValue = incoming.AccessTokenValue
		e.AccessTokenHash = incoming.AccessTokenHash
	}
	setTime(&e.AccessTokenIssuedAt, incoming.AccessTokenIssuedAt)
	setTime(&e.AccessTokenExpiresAt, incoming.AccessTokenExpiresAt)
	setString(&e.AccessTokenMetadata, incoming.AccessTokenMetadata)
	setString(&e.AccessTokenType, incoming.AccessTokenType)
	setString(&e.AccessTokenScopes, incoming.AccessTokenScopes)

	if incoming.RefreshTokenValue != "" {
		e.RefreshTokenValue = incoming.RefreshTokenValue
		e.RefreshTokenHash = incoming.RefreshTokenHash
	}
	setTime(&e.RefreshTokenIssuedAt, incoming.RefreshTokenIssuedAt)
	setTime(&e.RefreshTokenExpiresAt, incoming.RefreshTokenExpiresAt)
	setString(&e.RefreshTokenMetadata, incoming.RefreshTokenMetadata)
}

func setString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func setTime(dst **time.Time, src *time.Time) {
	if src != nil {
		*dst = src
	}
}
