package models

import (
	"strings"
	"time"
)

// KeyType is the asymmetric key family used for token signatures. The set is closed.
// KeyType 是用于令牌签名的非对称密钥类型，集合是封闭的。
type KeyType string

const (
	// KeyTypeEC selects elliptic-curve keys signing with ES256, ES384 or ES512.
	KeyTypeEC KeyType = "EC"
	// KeyTypeRSA selects RSA keys signing with RS256.
	KeyTypeRSA KeyType = "RSA"
)

// ParseKeyType converts a configured key type into a KeyType.
func ParseKeyType(s string) (KeyType, bool) {
	switch KeyType(strings.ToUpper(strings.TrimSpace(s))) {
	case KeyTypeEC:
		return KeyTypeEC, true
	case KeyTypeRSA:
		return KeyTypeRSA, true
	default:
		return "", false
	}
}

// KeyState is the lifecycle stage of a signing key derived from its age.
type KeyState string

const (
	// KeyStateActive keys sign new tokens and are published.
	KeyStateActive KeyState = "active"
	// KeyStateDeprecated keys no longer sign but are still published for verification.
	KeyStateDeprecated KeyState = "deprecated"
	// KeyStateInvalidated keys are neither used nor published.
	KeyStateInvalidated KeyState = "invalidated"
)

// SigningKeyPair is a persisted asymmetric key pair. The ID doubles as the JWK kid.
// Rows are never mutated after creation except for setting InvalidatedAt.
// SigningKeyPair 是持久化的非对称密钥对，ID 同时作为 JWK 的 kid。
// 除设置 InvalidatedAt 外，记录创建后不再修改。
type SigningKeyPair struct {
	// ID is the unique identifier for the key, published as the Key ID (kid).
	// ID 是密钥的唯一标识符，作为密钥 ID (kid) 发布。
	ID string `gorm:"primaryKey;size:64"`
	// KeyType is the key family of the pair.
	// KeyType 是密钥对的类型。
	KeyType KeyType `gorm:"size:8;not null;index:idx_signing_keys_type_created,priority:1"`
	// PublicKey is the PEM encoded PKIX public key.
	// PublicKey 是 PEM 编码的 PKIX 公钥。
	PublicKey string `gorm:"type:text;not null"`
	// PrivateKey is the PEM encoded PKCS#8 private key, encrypted at rest.
	// PrivateKey 是 PEM 编码的 PKCS#8 私钥，静态加密存储。
	PrivateKey string `gorm:"type:text;not null"`
	// CreatedAt is the creation instant. Age and lifecycle are derived from it.
	// CreatedAt 是创建时间，密钥年龄和生命周期由此推导。
	CreatedAt time.Time `gorm:"not null;index:idx_signing_keys_type_created,priority:2"`
	// InvalidatedAt marks the key as logically removed. Null while the key is usable.
	// InvalidatedAt 标记密钥已被逻辑删除。密钥可用时为 Null。
	InvalidatedAt *time.Time `gorm:"index"`
}

// TableName pins the table name.
func (SigningKeyPair) TableName() string {
	return "signing_key_pairs"
}

// Age returns how long ago the key was created.
func (k *SigningKeyPair) Age(now time.Time) time.Duration {
	return now.Sub(k.CreatedAt)
}

// Invalidated reports whether the key has been logically removed.
func (k *SigningKeyPair) Invalidated() bool {
	return k.InvalidatedAt != nil
}

// State derives the lifecycle stage of the key at now.
func (k *SigningKeyPair) State(now time.Time, rotation, deprecation time.Duration) KeyState {
	if k.Invalidated() {
		return KeyStateInvalidated
	}
	age := k.Age(now)
	switch {
	case age < rotation:
		return KeyStateActive
	case age < rotation+deprecation:
		return KeyStateDeprecated
	default:
		return KeyStateInvalidated
	}
}
