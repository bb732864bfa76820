package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/models"
	"github.com/postwave/postwave/internal/service/reddit"
)

// Expiry margins. The scheduling layer checks coarsely, one tick
// ahead; the direct API layer checks finely, call-time safe. Both are
// intentional and independent.
const (
	SchedulerExpiryMargin = 10 * time.Minute
	APIExpiryMargin       = 60 * time.Second
)

// TokenManager keeps credential tokens valid: it is the only mutator
// of a credential's OAuth material.
type TokenManager struct {
	creds  CredentialStore
	client *reddit.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewTokenManager(creds CredentialStore, client *reddit.Client, logger *zap.Logger) *TokenManager {
	return &TokenManager{
		creds:  creds,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// EnsureValid returns the credential with a usable access token,
// refreshing it when expiry falls inside the margin. Refresh failures
// are auth errors and never retried.
func (m *TokenManager) EnsureValid(ctx context.Context, cred *models.Credential, margin time.Duration) (*models.Credential, error) {
	now := m.now()

	if cred.TokenValid(now, margin) {
		return cred, nil
	}

	if cred.RefreshToken == "" {
		return nil, NewAuthError("credential has no refresh token and no valid access token", nil)
	}

	m.logger.Info("Refreshing access token",
		zap.Uint("credential_id", cred.ID),
		zap.String("username", cred.Username))

	token, err := m.client.RefreshToken(ctx, cred.RefreshToken)
	if err != nil {
		m.logger.Error("Token refresh failed",
			zap.Uint("credential_id", cred.ID),
			zap.Error(err))
		return nil, NewAuthError("token refresh failed", err)
	}

	expiry := now.Add(time.Duration(token.ExpiresIn) * time.Second)

	// Persist before returning. If this write fails the caller still
	// has the fresh token in hand, so log and carry on rather than
	// failing the in-flight call.
	if err := m.creds.UpdateTokens(ctx, cred.ID, token.AccessToken, expiry); err != nil {
		m.logger.Error("Failed to persist refreshed token",
			zap.Uint("credential_id", cred.ID),
			zap.Error(err))
	}

	fresh := *cred
	fresh.AccessToken = token.AccessToken
	fresh.TokenExpiry = &expiry
	return &fresh, nil
}
