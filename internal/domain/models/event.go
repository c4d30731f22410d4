package models

import (
	"time"

	"github.com/turtacn/authstore/pkg/constants"
)

// LifecycleEvent is published whenever a signing key or an authorization record
// changes state in a way other services may care about.
type LifecycleEvent struct {
	ID         string              `json:"id"`
	Type       constants.EventType `json:"type"`
	OccurredAt time.Time           `json:"occurred_at"`
	TenantID   string              `json:"tenant_id,omitempty"`
	ClientID   string              `json:"client_id,omitempty"`
	RecordID   string              `json:"record_id,omitempty"`
	KeyID      string              `json:"key_id,omitempty"`
	KeyType    KeyType             `json:"key_type,omitempty"`
	Count      int                 `json:"count,omitempty"`
}
