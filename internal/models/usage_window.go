package models

import (
	"time"
)

// UsageWindow is the durable side of the per-credential rate counter:
// one row per credential per fixed window bucket. Rows are created
// lazily on first use and superseded, not cleared, when the window
// rolls over. The unique index is what makes the upsert-increment
// atomic across processes.
type UsageWindow struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CredentialID  uint      `gorm:"not null;uniqueIndex:idx_usage_cred_window" json:"credential_id"`
	WindowStart   int64     `gorm:"not null;uniqueIndex:idx_usage_cred_window" json:"window_start"`
	RequestCount  int       `gorm:"not null;default:0" json:"request_count"`
	LastRequestAt time.Time `json:"last_request_at"`
	LastEndpoint  string    `gorm:"size:255" json:"last_endpoint"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
