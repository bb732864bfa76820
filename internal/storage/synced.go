package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/postwave/postwave/internal/models"
)

type SyncedPostStore struct {
	db *gorm.DB
}

func NewSyncedPostStore(db *gorm.DB) *SyncedPostStore {
	return &SyncedPostStore{db: db}
}

// ExistingIDs returns which of the given external ids are already
// stored, so a sync only inserts genuinely new posts.
func (s *SyncedPostStore) ExistingIDs(ctx context.Context, redditIDs []string) (map[string]bool, error) {
	if len(redditIDs) == 0 {
		return map[string]bool{}, nil
	}
	var found []string
	err := s.db.WithContext(ctx).
		Model(&models.SyncedPost{}).
		Where("reddit_post_id IN ?", redditIDs).
		Pluck("reddit_post_id", &found).Error
	if err != nil {
		return nil, fmt.Errorf("lookup synced posts: %w", err)
	}
	existing := make(map[string]bool, len(found))
	for _, id := range found {
		existing[id] = true
	}
	return existing, nil
}

// InsertBatch writes new synced posts in chunks to bound transaction
// size.
func (s *SyncedPostStore) InsertBatch(ctx context.Context, posts []models.SyncedPost, batchSize int) error {
	if len(posts) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(posts, batchSize).Error; err != nil {
		return fmt.Errorf("insert synced posts: %w", err)
	}
	return nil
}
