package models

import (
	"time"
)

// Credential is one linked Reddit account: its OAuth material plus the
// metadata the selector needs. Rows are deactivated externally, never
// deleted by this service.
type Credential struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Username     string     `gorm:"uniqueIndex;not null;size:255" json:"username"`
	AccessToken  string     `gorm:"type:text" json:"-"`
	RefreshToken string     `gorm:"type:text" json:"-"`
	TokenExpiry  *time.Time `json:"token_expiry"`
	Active       bool       `gorm:"default:true;index" json:"active"`
	LastUsedAt   *time.Time `json:"last_used_at"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TokenValid reports whether the access token is still usable at the
// given instant with the given safety margin.
func (c *Credential) TokenValid(now time.Time, margin time.Duration) bool {
	if c.AccessToken == "" || c.TokenExpiry == nil {
		return false
	}
	return c.TokenExpiry.After(now.Add(margin))
}

// Usable reports whether the credential can produce a valid token at
// all: either the access token still holds or a refresh token exists.
func (c *Credential) Usable(now time.Time, margin time.Duration) bool {
	return c.TokenValid(now, margin) || c.RefreshToken != ""
}
