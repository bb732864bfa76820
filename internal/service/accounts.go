package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/models"
)

// AccountService owns the credential pool: it picks which linked
// account an outbound call should use and keeps a single "current"
// credential between rotations.
type AccountService struct {
	creds  CredentialStore
	rate   *RateTracker
	tokens *TokenManager
	logger *zap.Logger

	mu         sync.Mutex
	currentID  uint
	rotating   bool
	rotateDone chan struct{}

	now func() time.Time
}

func NewAccountService(creds CredentialStore, rate *RateTracker, tokens *TokenManager, logger *zap.Logger) *AccountService {
	return &AccountService{
		creds:  creds,
		rate:   rate,
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// SelectBest picks the active credential with the oldest last-used
// timestamp, tie-broken by lowest current-window usage. Unusable and
// near-limit credentials are skipped. Returns nil when no credential
// qualifies.
//
// The chosen credential's last-used stamp is written immediately,
// before the caller issues any request, so a concurrent selection a
// moment later cannot pick the same one.
func (s *AccountService) SelectBest(ctx context.Context) (*models.Credential, error) {
	creds, err := s.creds.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var best *models.Credential
	for i := range creds {
		cred := &creds[i]
		if !cred.Usable(now, APIExpiryMargin) {
			continue
		}
		if s.rate.IsNearLimit(cred.ID) {
			s.logger.Debug("Skipping near-limit credential",
				zap.Uint("credential_id", cred.ID),
				zap.Int("count", s.rate.CurrentCount(cred.ID)))
			continue
		}
		if best == nil || lessRecentlyUsed(cred, best) ||
			(sameLastUsed(cred, best) && s.rate.CurrentCount(cred.ID) < s.rate.CurrentCount(best.ID)) {
			best = cred
		}
	}
	if best == nil {
		return nil, nil
	}

	if err := s.creds.TouchLastUsed(ctx, best.ID, now); err != nil {
		return nil, err
	}
	best.LastUsedAt = &now

	s.logger.Info("Selected credential",
		zap.Uint("credential_id", best.ID),
		zap.String("username", best.Username),
		zap.Int("window_count", s.rate.CurrentCount(best.ID)))

	return best, nil
}

// Rotate promotes a fresh credential to current. Concurrent callers do
// not start their own rotation: the first one runs it, the rest await
// its completion and read the result. This is cooperative mutual
// exclusion within one process, not a lock on the pool.
func (s *AccountService) Rotate(ctx context.Context) (*models.Credential, error) {
	s.mu.Lock()
	if s.rotating {
		done := s.rotateDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		s.mu.Lock()
		id := s.currentID
		s.mu.Unlock()
		if id == 0 {
			return nil, NewAuthError("no usable credential after rotation", nil)
		}
		return s.creds.GetByID(ctx, id)
	}
	s.rotating = true
	s.rotateDone = make(chan struct{})
	done := s.rotateDone
	s.mu.Unlock()

	cred, err := s.doRotate(ctx)

	s.mu.Lock()
	if err == nil && cred != nil {
		s.currentID = cred.ID
	} else {
		s.currentID = 0
	}
	s.rotating = false
	close(done)
	s.mu.Unlock()

	return cred, err
}

// doRotate selects and token-validates a credential. A candidate whose
// refresh fails is skipped; its fresh last-used stamp naturally pushes
// the next selection onto a different credential.
func (s *AccountService) doRotate(ctx context.Context) (*models.Credential, error) {
	active, err := s.creds.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < len(active); attempt++ {
		cred, err := s.SelectBest(ctx)
		if err != nil {
			return nil, err
		}
		if cred == nil {
			break
		}
		fresh, err := s.tokens.EnsureValid(ctx, cred, SchedulerExpiryMargin)
		if err == nil {
			return fresh, nil
		}
		if Classify(err) != ErrorAuth {
			return nil, err
		}
		s.logger.Warn("Rotation skipping credential with failed refresh",
			zap.Uint("credential_id", cred.ID),
			zap.Error(err))
	}

	return nil, NewAuthError("no usable credential in pool", nil)
}

// Acquire returns a ready credential: the current one when it is still
// healthy, otherwise the result of a rotation.
func (s *AccountService) Acquire(ctx context.Context) (*models.Credential, error) {
	s.mu.Lock()
	id := s.currentID
	s.mu.Unlock()

	if id != 0 {
		cred, err := s.creds.GetByID(ctx, id)
		if err == nil && cred.Active && !s.rate.IsNearLimit(cred.ID) {
			fresh, err := s.tokens.EnsureValid(ctx, cred, SchedulerExpiryMargin)
			if err == nil {
				return fresh, nil
			}
			// Invalid or unrefreshable token forces re-selection.
			s.Invalidate(cred.ID)
		}
	}

	return s.Rotate(ctx)
}

// Invalidate clears the current selection if it matches the given
// credential, forcing the next Acquire to rotate.
func (s *AccountService) Invalidate(credentialID uint) {
	s.mu.Lock()
	if s.currentID == credentialID {
		s.currentID = 0
	}
	s.mu.Unlock()
}

// Current returns the id of the currently selected credential, 0 when
// none is selected.
func (s *AccountService) Current() uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

func lessRecentlyUsed(a, b *models.Credential) bool {
	if a.LastUsedAt == nil {
		return b.LastUsedAt != nil
	}
	if b.LastUsedAt == nil {
		return false
	}
	return a.LastUsedAt.Before(*b.LastUsedAt)
}

func sameLastUsed(a, b *models.Credential) bool {
	if a.LastUsedAt == nil || b.LastUsedAt == nil {
		return a.LastUsedAt == nil && b.LastUsedAt == nil
	}
	return a.LastUsedAt.Equal(*b.LastUsedAt)
}
