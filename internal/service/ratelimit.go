package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/config"
)

type windowCount struct {
	windowStart int64
	count       int
}

// RateTracker counts requests per credential in fixed windows. The
// in-memory map is the fast path and stays authoritative for this
// process; the durable usage_windows row is the cross-process safety
// net. Failures on the durable path are logged and swallowed.
type RateTracker struct {
	usage  UsageStore
	logger *zap.Logger

	window       time.Duration
	quota        int
	nearLimitPct int

	mu     sync.Mutex
	counts map[uint]*windowCount

	now func() time.Time
}

func NewRateTracker(cfg *config.RateLimitConfig, usage UsageStore, logger *zap.Logger) *RateTracker {
	return &RateTracker{
		usage:        usage,
		logger:       logger,
		window:       time.Duration(cfg.WindowSeconds) * time.Second,
		quota:        cfg.RequestsPerWindow,
		nearLimitPct: cfg.NearLimitPercent,
		counts:       make(map[uint]*windowCount),
		now:          time.Now,
	}
}

// Record counts one outbound request against the credential's current
// window, in memory and durably.
func (t *RateTracker) Record(ctx context.Context, credentialID uint, endpoint string) {
	at := t.now()
	bucket := t.bucketStart(at)

	t.mu.Lock()
	wc, ok := t.counts[credentialID]
	if !ok || wc.windowStart != bucket {
		// Window rolled over: the stale count is superseded, not
		// cleared, so a late writer from the old window cannot race us.
		wc = &windowCount{windowStart: bucket}
		t.counts[credentialID] = wc
	}
	wc.count++
	t.mu.Unlock()

	if err := t.usage.Increment(ctx, credentialID, bucket, endpoint, at); err != nil {
		t.logger.Warn("Failed to persist usage window",
			zap.Uint("credential_id", credentialID),
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
}

// IsNearLimit reports whether the credential crossed the proactive
// rotation threshold. This is not a hard block: waiting for the
// upstream 429 would waste a request and a backoff cycle.
func (t *RateTracker) IsNearLimit(credentialID uint) bool {
	count := t.CurrentCount(credentialID)
	return count*100 >= t.quota*t.nearLimitPct
}

// CurrentCount returns the in-memory count for the current window.
func (t *RateTracker) CurrentCount(credentialID uint) int {
	bucket := t.bucketStart(t.now())

	t.mu.Lock()
	defer t.mu.Unlock()
	wc, ok := t.counts[credentialID]
	if !ok || wc.windowStart != bucket {
		return 0
	}
	return wc.count
}

func (t *RateTracker) bucketStart(at time.Time) int64 {
	windowSecs := int64(t.window / time.Second)
	return at.Unix() / windowSecs * windowSecs
}
