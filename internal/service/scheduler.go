package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/config"
	"github.com/postwave/postwave/internal/models"
	"github.com/postwave/postwave/internal/service/reddit"
)

// ErrTickInProgress is returned when a tick fires while the previous
// one is still running; the new tick is skipped, not queued.
var ErrTickInProgress = errors.New("scheduler tick already in progress")

// Scheduler drives due campaign posts through their state machine:
// scheduled, processing, then posted or failed. Posted and failed are
// terminal for the row; recurrence continues the chain in a new row.
type Scheduler struct {
	config   *config.SchedulerConfig
	logger   *zap.Logger
	posts    PostStore
	creds    CredentialStore
	activity ActivityStore
	accounts *AccountService
	tokens   *TokenManager
	rate     *RateTracker
	client   *reddit.Client
	retry    RetryConfig

	ticker  *time.Ticker
	stopCh  chan struct{}
	ticking atomic.Bool

	now func() time.Time
}

func NewScheduler(
	cfg *config.SchedulerConfig,
	logger *zap.Logger,
	posts PostStore,
	creds CredentialStore,
	activity ActivityStore,
	accounts *AccountService,
	tokens *TokenManager,
	rate *RateTracker,
	client *reddit.Client,
) *Scheduler {
	return &Scheduler{
		config:   cfg,
		logger:   logger,
		posts:    posts,
		creds:    creds,
		activity: activity,
		accounts: accounts,
		tokens:   tokens,
		rate:     rate,
		client:   client,
		retry:    DefaultRetryConfig(),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	interval, err := time.ParseDuration(s.config.PollInterval)
	if err != nil {
		s.logger.Error("Invalid poll interval", zap.String("interval", s.config.PollInterval), zap.Error(err))
		return err
	}

	s.logger.Info("Starting scheduler", zap.String("poll_interval", s.config.PollInterval))

	s.ticker = time.NewTicker(interval)

	// Run first tick immediately
	go func() {
		s.logger.Info("Running initial tick")
		if _, err := s.ProcessDuePosts(ctx); err != nil {
			s.logger.Error("Initial tick failed", zap.Error(err))
		}
	}()

	// Start periodic ticks
	go func() {
		for {
			select {
			case <-s.ticker.C:
				if _, err := s.ProcessDuePosts(ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
					s.logger.Error("Scheduled tick failed", zap.Error(err))
				}
			case <-s.stopCh:
				s.logger.Info("Scheduler stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Scheduler context cancelled")
				return
			}
		}
	}()

	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
	s.logger.Info("Scheduler shutdown completed")
}

// ProcessDuePosts runs one tick: query due posts and process them
// sequentially. Sequential on purpose: it keeps a tick within a single
// credential's rate budget and isolates failures per post. A tick that
// overlaps a still-running one is skipped.
func (s *Scheduler) ProcessDuePosts(ctx context.Context) (int, error) {
	if !s.ticking.CompareAndSwap(false, true) {
		s.logger.Warn("Tick skipped, previous tick still running")
		return 0, ErrTickInProgress
	}
	defer s.ticking.Store(false)

	start := s.now()
	due, err := s.posts.DuePosts(ctx, start)
	if err != nil {
		return 0, fmt.Errorf("query due posts: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	s.logger.Info("Processing due posts", zap.Int("count", len(due)))

	processed := 0
	for i := range due {
		s.processPost(ctx, &due[i])
		processed++
	}

	s.logger.Info("Tick completed",
		zap.Int("processed", processed),
		zap.Duration("duration", s.now().Sub(start)))

	return processed, nil
}

// processPost drives one post through the state machine. Nothing that
// happens here may abort the remaining posts in the tick: errors and
// even panics are converted into the post's failed state.
func (s *Scheduler) processPost(ctx context.Context, post *models.CampaignPost) {
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while processing post",
				zap.Uint("post_id", post.ID),
				zap.Any("panic", r))
			s.finishFailed(ctx, post, start, fmt.Sprintf("internal error: %v", r))
		}
	}()

	// The claim is the exclusivity gate: transition to processing
	// before any network call. A miss means another process owns the
	// post; skip it this tick.
	claimed, err := s.posts.Claim(ctx, post.ID, start)
	if err != nil {
		s.logger.Error("Failed to claim post", zap.Uint("post_id", post.ID), zap.Error(err))
		return
	}
	if !claimed {
		s.logger.Debug("Post already claimed, skipping", zap.Uint("post_id", post.ID))
		return
	}

	result, err := s.executePost(ctx, post)
	if err != nil {
		s.finishFailed(ctx, post, start, err.Error())
		return
	}
	s.finishPosted(ctx, post, start, result)
}

// executePost validates, resolves a credential, and submits.
func (s *Scheduler) executePost(ctx context.Context, post *models.CampaignPost) (*reddit.SubmitResult, error) {
	if err := validatePost(post); err != nil {
		return nil, err
	}

	cred, err := s.resolveCredential(ctx, post)
	if err != nil {
		return nil, err
	}

	req := reddit.SubmitRequest{
		Subreddit:   post.Subreddit,
		Title:       post.Title,
		ContentType: post.ContentType,
	}
	switch post.ContentType {
	case models.ContentTypeText:
		req.Body = post.Content
	case models.ContentTypeLink:
		req.URL = post.Content
	case models.ContentTypeImage:
		req.URL = post.MediaURL
		req.Caption = post.Content
	}

	return Retry(ctx, s.logger, s.retry, "submit", func(ctx context.Context) (*reddit.SubmitResult, error) {
		s.rate.Record(ctx, cred.ID, "submit")
		return s.client.Submit(ctx, cred.AccessToken, req)
	})
}

// resolveCredential uses the post's pinned credential when set,
// otherwise asks the selector for the best available one.
func (s *Scheduler) resolveCredential(ctx context.Context, post *models.CampaignPost) (*models.Credential, error) {
	if post.CredentialID == 0 {
		cred, err := s.accounts.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return cred, nil
	}

	cred, err := s.creds.GetByID(ctx, post.CredentialID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}
	if !cred.Active {
		return nil, NewValidationError(fmt.Sprintf("credential %d is deactivated", cred.ID))
	}
	fresh, err := s.tokens.EnsureValid(ctx, cred, SchedulerExpiryMargin)
	if err != nil {
		s.accounts.Invalidate(cred.ID)
		return nil, err
	}
	return fresh, nil
}

func (s *Scheduler) finishPosted(ctx context.Context, post *models.CampaignPost, start time.Time, result *reddit.SubmitResult) {
	finished := s.now()
	execMs := finished.Sub(start).Milliseconds()

	if err := s.posts.MarkPosted(ctx, post.ID, finished, execMs, result.PostID, result.Permalink); err != nil {
		s.logger.Error("Failed to mark post as posted",
			zap.Uint("post_id", post.ID),
			zap.String("reddit_post_id", result.PostID),
			zap.Error(err))
	}

	s.logger.Info("Post published",
		zap.Uint("post_id", post.ID),
		zap.String("subreddit", post.Subreddit),
		zap.String("reddit_post_id", result.PostID),
		zap.Int64("execution_time_ms", execMs))

	s.recordActivity(ctx, post, models.ActionPostPublished, map[string]any{
		"reddit_post_id":    result.PostID,
		"permalink":         result.Permalink,
		"execution_time_ms": execMs,
	})

	if post.Recurring() {
		s.scheduleRecurrence(ctx, post, finished)
	}
}

func (s *Scheduler) finishFailed(ctx context.Context, post *models.CampaignPost, start time.Time, lastError string) {
	finished := s.now()
	execMs := finished.Sub(start).Milliseconds()

	if err := s.posts.MarkFailed(ctx, post.ID, finished, execMs, lastError); err != nil {
		s.logger.Error("Failed to mark post as failed",
			zap.Uint("post_id", post.ID),
			zap.Error(err))
	}

	s.logger.Warn("Post failed",
		zap.Uint("post_id", post.ID),
		zap.String("subreddit", post.Subreddit),
		zap.String("error", lastError))

	s.recordActivity(ctx, post, models.ActionPostFailed, map[string]any{
		"error":             lastError,
		"execution_time_ms": execMs,
	})
}

// scheduleRecurrence enqueues the next occurrence as a new row linked
// via parent id. The original row is terminal and never reused. A next
// time that already passed (the tick was delayed past a full interval)
// is re-anchored to now plus the interval; a recurring post is never
// scheduled in the past.
func (s *Scheduler) scheduleRecurrence(ctx context.Context, post *models.CampaignPost, now time.Time) {
	interval := time.Duration(post.IntervalHours) * time.Hour
	next := post.ScheduledFor.Add(interval)
	if !next.After(now) {
		next = now.Add(interval)
	}

	recurrence := &models.CampaignPost{
		CampaignID:    post.CampaignID,
		CredentialID:  post.CredentialID,
		Subreddit:     post.Subreddit,
		Title:         post.Title,
		ContentType:   post.ContentType,
		Content:       post.Content,
		MediaURL:      post.MediaURL,
		Status:        models.PostStatusScheduled,
		ScheduledFor:  next,
		IntervalHours: post.IntervalHours,
		ParentPostID:  post.ID,
	}
	if err := s.posts.Create(ctx, recurrence); err != nil {
		s.logger.Error("Failed to schedule recurrence",
			zap.Uint("post_id", post.ID),
			zap.Error(err))
		return
	}

	s.logger.Info("Recurrence scheduled",
		zap.Uint("parent_post_id", post.ID),
		zap.Uint("post_id", recurrence.ID),
		zap.Time("scheduled_for", next))

	s.recordActivity(ctx, post, models.ActionPostRecurred, map[string]any{
		"next_post_id":  recurrence.ID,
		"scheduled_for": next.Format(time.RFC3339),
	})
}

// recordActivity appends an audit entry. Best effort: a logging
// failure must never threaten the state machine it observes.
func (s *Scheduler) recordActivity(ctx context.Context, post *models.CampaignPost, action string, details map[string]any) {
	payload, _ := json.Marshal(details)
	rec := &models.ActivityRecord{
		CampaignID: post.CampaignID,
		PostID:     post.ID,
		Action:     action,
		Details:    string(payload),
	}
	if err := s.activity.Append(ctx, rec); err != nil {
		s.logger.Warn("Failed to append activity record",
			zap.Uint("post_id", post.ID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// validatePost rejects malformed posts before any credential or
// network work.
func validatePost(post *models.CampaignPost) error {
	if strings.TrimSpace(post.Title) == "" {
		return NewValidationError("post has no title")
	}
	if strings.TrimSpace(post.Subreddit) == "" {
		return NewValidationError("post has no target community")
	}
	switch post.ContentType {
	case models.ContentTypeText:
		// Body may be empty; a bare title is a valid self post.
	case models.ContentTypeLink:
		if strings.TrimSpace(post.Content) == "" {
			return NewValidationError("link post has no URL")
		}
	case models.ContentTypeImage:
		if strings.TrimSpace(post.MediaURL) == "" {
			return NewValidationError("image post has no media reference")
		}
	default:
		return NewValidationError(fmt.Sprintf("unknown content type %q", post.ContentType))
	}
	return nil
}
