package models

import "time"

// RegisteredClient is the read-only view of an OAuth2 client owned by the client
// registration subsystem.
type RegisteredClient struct {
	ClientID    string `gorm:"primaryKey;size:128"`
	TenantID    string `gorm:"size:64;not null;index"`
	ClientName  string `gorm:"size:255"`
	Invalidated bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName pins the table name.
func (RegisteredClient) TableName() string {
	return "registered_clients"
}

// AccessibleFrom reports whether the client may be used by tenantID.
func (c *RegisteredClient) AccessibleFrom(tenantID string) bool {
	return c != nil && !c.Invalidated && c.TenantID == tenantID
}
