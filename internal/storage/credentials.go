package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/postwave/postwave/internal/models"
)

type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) GetByID(ctx context.Context, id uint) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.WithContext(ctx).First(&cred, id).Error; err != nil {
		return nil, fmt.Errorf("credential %d: %w", id, err)
	}
	return &cred, nil
}

// ListActive returns active credentials ordered oldest-used first, so
// the selector's scan order matches its preference order.
func (s *CredentialStore) ListActive(ctx context.Context) ([]models.Credential, error) {
	var creds []models.Credential
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("last_used_at ASC NULLS FIRST").
		Find(&creds).Error
	if err != nil {
		return nil, fmt.Errorf("list active credentials: %w", err)
	}
	return creds, nil
}

// TouchLastUsed stamps the selection time. Called at selection, before
// the request is actually issued, so concurrent selections diverge.
func (s *CredentialStore) TouchLastUsed(ctx context.Context, id uint, t time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ?", id).
		Update("last_used_at", t).Error
}

func (s *CredentialStore) UpdateTokens(ctx context.Context, id uint, accessToken string, expiry time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token": accessToken,
			"token_expiry": expiry,
		}).Error
}

func (s *CredentialStore) UpdateLastSynced(ctx context.Context, id uint, t time.Time) error {
	return s.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ?", id).
		Update("last_synced_at", t).Error
}
