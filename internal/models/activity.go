package models

import (
	"time"
)

const (
	ActionPostPublished = "post_published"
	ActionPostFailed    = "post_failed"
	ActionPostRecurred  = "post_recurred"
	ActionSyncCompleted = "sync_completed"
)

// ActivityRecord is an append-only audit entry written by the
// scheduler. It is observability only: a failed write here never
// affects the post state machine.
type ActivityRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"index" json:"campaign_id"`
	PostID     uint      `gorm:"index" json:"post_id"`
	Action     string    `gorm:"not null;size:50" json:"action"`
	Details    string    `gorm:"type:text" json:"details"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
