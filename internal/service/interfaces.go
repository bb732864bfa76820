package service

import (
	"context"
	"time"

	"github.com/postwave/postwave/internal/models"
)

// Store interfaces are declared on the consumer side so every service
// can be exercised against in-memory fakes; the storage package
// provides the gorm-backed implementations.

type CredentialStore interface {
	GetByID(ctx context.Context, id uint) (*models.Credential, error)
	ListActive(ctx context.Context) ([]models.Credential, error)
	TouchLastUsed(ctx context.Context, id uint, t time.Time) error
	UpdateTokens(ctx context.Context, id uint, accessToken string, expiry time.Time) error
	UpdateLastSynced(ctx context.Context, id uint, t time.Time) error
}

type PostStore interface {
	Create(ctx context.Context, post *models.CampaignPost) error
	DuePosts(ctx context.Context, now time.Time) ([]models.CampaignPost, error)
	Claim(ctx context.Context, id uint, now time.Time) (bool, error)
	MarkPosted(ctx context.Context, id uint, postedAt time.Time, execMs int64, redditID, permalink string) error
	MarkFailed(ctx context.Context, id uint, attemptedAt time.Time, execMs int64, lastError string) error
}

type UsageStore interface {
	Increment(ctx context.Context, credentialID uint, windowStart int64, endpoint string, at time.Time) error
}

type ActivityStore interface {
	Append(ctx context.Context, rec *models.ActivityRecord) error
}

type SyncedPostStore interface {
	ExistingIDs(ctx context.Context, redditIDs []string) (map[string]bool, error)
	InsertBatch(ctx context.Context, posts []models.SyncedPost, batchSize int) error
}
