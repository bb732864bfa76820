package models

import (
	"time"
)

// SyncedPost is a Reddit submission that already exists upstream and
// was reconciled back into local storage. Kept separate from
// CampaignPost so reconciliation can never collide with the campaign
// state machine; deduplicated by RedditPostID.
type SyncedPost struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	CredentialID uint       `gorm:"not null;index" json:"credential_id"`
	RedditPostID string     `gorm:"uniqueIndex;not null;size:64" json:"reddit_post_id"`
	Subreddit    string     `gorm:"size:255" json:"subreddit"`
	Title        string     `gorm:"size:500" json:"title"`
	Permalink    string     `gorm:"size:2048" json:"permalink"`
	PostedAt     *time.Time `json:"posted_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
