package models

import (
	"time"
)

const (
	PostStatusScheduled  = "scheduled"
	PostStatusProcessing = "processing"
	PostStatusPosted     = "posted"
	PostStatusFailed     = "failed"
)

const (
	ContentTypeText  = "text"
	ContentTypeLink  = "link"
	ContentTypeImage = "image"
)

// CampaignPost is one scheduled submission. Rows are created by the
// campaign UI or by the recurrence step; a recurrence always creates a
// new row linked through ParentPostID, the original row is terminal.
type CampaignPost struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	CampaignID          uint       `gorm:"not null;index" json:"campaign_id"`
	CredentialID        uint       `gorm:"index" json:"credential_id"`
	Subreddit           string     `gorm:"not null;size:255" json:"subreddit"`
	Title               string     `gorm:"size:500" json:"title"`
	ContentType         string     `gorm:"size:20;default:'text'" json:"content_type"`
	Content             string     `gorm:"type:text" json:"content"`
	MediaURL            string     `gorm:"size:2048" json:"media_url"`
	Status              string     `gorm:"size:20;default:'scheduled';index" json:"status"`
	ScheduledFor        time.Time  `gorm:"not null;index" json:"scheduled_for"`
	ProcessingStartedAt *time.Time `json:"processing_started_at"`
	PostedAt            *time.Time `json:"posted_at"`
	ExecutionTimeMs     int64      `json:"execution_time_ms"`
	RedditPostID        string     `gorm:"size:64;index" json:"reddit_post_id"`
	RedditPermalink     string     `gorm:"size:2048" json:"reddit_permalink"`
	LastError           string     `gorm:"type:text" json:"last_error"`
	IntervalHours       int        `json:"interval_hours"`
	ParentPostID        uint       `gorm:"index" json:"parent_post_id"`
	CreatedAt           time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Recurring reports whether a successful submission should enqueue a
// follow-up occurrence.
func (p *CampaignPost) Recurring() bool {
	return p.IntervalHours > 0
}
