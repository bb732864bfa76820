package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/service/reddit"
)

// Subreddit metadata changes slowly; ten minutes keeps repeat lookups
// off the shared quota.
const communityCacheTTL = 10 * time.Minute

// CommunityService answers subreddit lookups through the TTL cache so
// repeated reads of the same community cost one upstream request per
// TTL, not one per call.
type CommunityService struct {
	logger   *zap.Logger
	cache    *Cache
	accounts *AccountService
	rate     *RateTracker
	client   *reddit.Client
	retry    RetryConfig
}

func NewCommunityService(logger *zap.Logger, cache *Cache, accounts *AccountService, rate *RateTracker, client *reddit.Client) *CommunityService {
	return &CommunityService{
		logger:   logger,
		cache:    cache,
		accounts: accounts,
		rate:     rate,
		client:   client,
		retry:    DefaultRetryConfig(),
	}
}

func (s *CommunityService) SubredditInfo(ctx context.Context, name string) (*reddit.SubredditInfo, error) {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "r/")
	if name == "" {
		return nil, NewValidationError("empty community name")
	}

	cacheKey := "subreddit:" + name
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached.(*reddit.SubredditInfo), nil
	}

	cred, err := s.accounts.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	info, err := Retry(ctx, s.logger, s.retry, "subreddit_about", func(ctx context.Context) (*reddit.SubredditInfo, error) {
		s.rate.Record(ctx, cred.ID, "subreddit_about")
		return s.client.AboutSubreddit(ctx, cred.AccessToken, name)
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(cacheKey, info, communityCacheTTL)
	return info, nil
}
