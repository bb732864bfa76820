package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/postwave/postwave/internal/models"
)

type UsageStore struct {
	db *gorm.DB
}

func NewUsageStore(db *gorm.DB) *UsageStore {
	return &UsageStore{db: db}
}

// Increment bumps the durable counter for the credential's current
// window: insert-if-absent, else atomic increment at the store level.
// This row is what keeps multiple processes sharing a credential pool
// honest about the upstream quota.
func (s *UsageStore) Increment(ctx context.Context, credentialID uint, windowStart int64, endpoint string, at time.Time) error {
	win := models.UsageWindow{
		CredentialID:  credentialID,
		WindowStart:   windowStart,
		RequestCount:  1,
		LastRequestAt: at,
		LastEndpoint:  endpoint,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "credential_id"}, {Name: "window_start"}},
		DoUpdates: clause.Assignments(map[string]any{
			"request_count":   gorm.Expr("usage_windows.request_count + 1"),
			"last_request_at": at,
			"last_endpoint":   endpoint,
		}),
	}).Create(&win).Error
	if err != nil {
		return fmt.Errorf("increment usage window: %w", err)
	}
	return nil
}

// Count returns the durable counter for one credential window, 0 when
// the window has no row yet.
func (s *UsageStore) Count(ctx context.Context, credentialID uint, windowStart int64) (int, error) {
	var win models.UsageWindow
	err := s.db.WithContext(ctx).
		Where("credential_id = ? AND window_start = ?", credentialID, windowStart).
		First(&win).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage window: %w", err)
	}
	return win.RequestCount, nil
}
