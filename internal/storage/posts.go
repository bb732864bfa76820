package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/postwave/postwave/internal/models"
)

type PostStore struct {
	db *gorm.DB
}

func NewPostStore(db *gorm.DB) *PostStore {
	return &PostStore{db: db}
}

func (s *PostStore) Create(ctx context.Context, post *models.CampaignPost) error {
	if err := s.db.WithContext(ctx).Create(post).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *PostStore) GetByID(ctx context.Context, id uint) (*models.CampaignPost, error) {
	var post models.CampaignPost
	if err := s.db.WithContext(ctx).First(&post, id).Error; err != nil {
		return nil, fmt.Errorf("post %d: %w", id, err)
	}
	return &post, nil
}

// DuePosts returns scheduled posts whose time has come, ascending by
// scheduled_for. Recurrence correctness does not depend on this order;
// it just makes the tick process the most overdue post first.
func (s *PostStore) DuePosts(ctx context.Context, now time.Time) ([]models.CampaignPost, error) {
	var posts []models.CampaignPost
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.PostStatusScheduled, now).
		Order("scheduled_for ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("query due posts: %w", err)
	}
	return posts, nil
}

// Claim transitions a post from scheduled to processing. The
// conditional update is the exclusivity gate: zero rows affected means
// another process owns the post and the caller must skip it.
func (s *PostStore) Claim(ctx context.Context, id uint, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&models.CampaignPost{}).
		Where("id = ? AND status = ?", id, models.PostStatusScheduled).
		Updates(map[string]any{
			"status":                models.PostStatusProcessing,
			"processing_started_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim post %d: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *PostStore) MarkPosted(ctx context.Context, id uint, postedAt time.Time, execMs int64, redditID, permalink string) error {
	return s.db.WithContext(ctx).
		Model(&models.CampaignPost{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            models.PostStatusPosted,
			"posted_at":         postedAt,
			"execution_time_ms": execMs,
			"reddit_post_id":    redditID,
			"reddit_permalink":  permalink,
			"last_error":        "",
		}).Error
}

// MarkFailed stamps posted_at as the terminal-attempt time even though
// nothing was posted.
func (s *PostStore) MarkFailed(ctx context.Context, id uint, attemptedAt time.Time, execMs int64, lastError string) error {
	return s.db.WithContext(ctx).
		Model(&models.CampaignPost{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            models.PostStatusFailed,
			"posted_at":         attemptedAt,
			"execution_time_ms": execMs,
			"last_error":        lastError,
		}).Error
}

// Upcoming returns scheduled posts due before the given horizon.
func (s *PostStore) Upcoming(ctx context.Context, until time.Time) ([]models.CampaignPost, error) {
	var posts []models.CampaignPost
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", models.PostStatusScheduled, until).
		Order("scheduled_for ASC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("query upcoming posts: %w", err)
	}
	return posts, nil
}

// CampaignStats counts a campaign's posts by status.
func (s *PostStore) CampaignStats(ctx context.Context, campaignID uint) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).
		Model(&models.CampaignPost{}).
		Select("status, count(*) as count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("campaign %d stats: %w", campaignID, err)
	}
	stats := make(map[string]int64, len(rows))
	for _, r := range rows {
		stats[r.Status] = r.Count
	}
	return stats, nil
}
