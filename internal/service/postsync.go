package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/config"
	"github.com/postwave/postwave/internal/models"
	"github.com/postwave/postwave/internal/service/reddit"
)

// PostSync reconciles posts already published on Reddit back into
// local storage, deduplicating by external id.
type PostSync struct {
	config *config.SyncConfig
	logger *zap.Logger
	creds  CredentialStore
	synced SyncedPostStore
	tokens *TokenManager
	rate   *RateTracker
	client *reddit.Client
	retry  RetryConfig

	ticker *time.Ticker
	stopCh chan struct{}

	now func() time.Time
}

func NewPostSync(
	cfg *config.SyncConfig,
	logger *zap.Logger,
	creds CredentialStore,
	synced SyncedPostStore,
	tokens *TokenManager,
	rate *RateTracker,
	client *reddit.Client,
) *PostSync {
	return &PostSync{
		config: cfg,
		logger: logger,
		creds:  creds,
		synced: synced,
		tokens: tokens,
		rate:   rate,
		client: client,
		retry:  DefaultRetryConfig(),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start runs periodic full syncs when enabled.
func (s *PostSync) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Post sync is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.Interval)
	if err != nil {
		s.logger.Error("Invalid sync interval", zap.String("interval", s.config.Interval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting post sync", zap.String("interval", s.config.Interval))

	s.ticker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.ticker.C:
				count := s.SyncAll(ctx)
				s.logger.Info("Scheduled sync completed", zap.Int("new_posts", count))
			case <-s.stopCh:
				s.logger.Info("Post sync stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Post sync context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *PostSync) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// SyncAccount pulls the credential owner's most recent submissions and
// stores the ones not seen before. Returns whether anything new was
// stored. Finding nothing is still a recordable outcome: the last
// synced stamp is updated either way.
func (s *PostSync) SyncAccount(ctx context.Context, credentialID uint) (bool, error) {
	cred, err := s.creds.GetByID(ctx, credentialID)
	if err != nil {
		return false, err
	}

	fresh, err := s.tokens.EnsureValid(ctx, cred, APIExpiryMargin)
	if err != nil {
		return false, err
	}

	listed, err := Retry(ctx, s.logger, s.retry, "user_posts", func(ctx context.Context) ([]reddit.ListedPost, error) {
		s.rate.Record(ctx, fresh.ID, "user_posts")
		return s.client.UserPosts(ctx, fresh.AccessToken, fresh.Username, s.config.FetchLimit)
	})
	if err != nil {
		return false, err
	}

	ids := make([]string, 0, len(listed))
	for _, p := range listed {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	existing, err := s.synced.ExistingIDs(ctx, ids)
	if err != nil {
		return false, err
	}

	var newPosts []models.SyncedPost
	for _, p := range listed {
		if p.ID == "" || existing[p.ID] {
			continue
		}
		postedAt := time.Unix(int64(p.CreatedUTC), 0)
		newPosts = append(newPosts, models.SyncedPost{
			CredentialID: fresh.ID,
			RedditPostID: p.ID,
			Subreddit:    p.Subreddit,
			Title:        p.Title,
			Permalink:    p.Permalink,
			PostedAt:     &postedAt,
		})
	}

	if len(newPosts) > 0 {
		if err := s.synced.InsertBatch(ctx, newPosts, s.config.InsertBatch); err != nil {
			return false, err
		}
	}

	if err := s.creds.UpdateLastSynced(ctx, fresh.ID, s.now()); err != nil {
		s.logger.Warn("Failed to update last synced timestamp",
			zap.Uint("credential_id", fresh.ID),
			zap.Error(err))
	}

	s.logger.Info("Account sync completed",
		zap.Uint("credential_id", fresh.ID),
		zap.String("username", fresh.Username),
		zap.Int("fetched", len(listed)),
		zap.Int("new", len(newPosts)))

	return len(newPosts) > 0, nil
}

// SyncAll syncs every active credential with a fixed pause between
// accounts so a full sync does not burst the shared upstream quota.
// Returns the number of accounts that had new posts.
func (s *PostSync) SyncAll(ctx context.Context) int {
	creds, err := s.creds.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to list credentials for sync", zap.Error(err))
		return 0
	}

	delay, err := time.ParseDuration(s.config.AccountDelay)
	if err != nil {
		delay = 2 * time.Second
	}

	count := 0
	for i := range creds {
		hadNew, err := s.SyncAccount(ctx, creds[i].ID)
		if err != nil {
			s.logger.Error("Account sync failed",
				zap.Uint("credential_id", creds[i].ID),
				zap.Error(err))
		} else if hadNew {
			count++
		}

		if i < len(creds)-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return count
			}
		}
	}

	return count
}
