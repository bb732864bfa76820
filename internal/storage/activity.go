package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/postwave/postwave/internal/models"
)

type ActivityStore struct {
	db *gorm.DB
}

func NewActivityStore(db *gorm.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Append(ctx context.Context, rec *models.ActivityRecord) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (s *ActivityStore) RecentForCampaign(ctx context.Context, campaignID uint, limit int) ([]models.ActivityRecord, error) {
	var recs []models.ActivityRecord
	err := s.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("recent activity for campaign %d: %w", campaignID, err)
	}
	return recs, nil
}
