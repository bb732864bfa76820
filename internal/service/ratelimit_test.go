package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/config"
)

func newTestRateTracker(usage *fakeUsageStore) *RateTracker {
	cfg := &config.RateLimitConfig{
		WindowSeconds:     60,
		RequestsPerWindow: 60,
		NearLimitPercent:  80,
	}
	return NewRateTracker(cfg, usage, zap.NewNop())
}

func TestRateTrackerRecordAndCount(t *testing.T) {
	usage := &fakeUsageStore{}
	tracker := newTestRateTracker(usage)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		tracker.Record(ctx, 1, "submit")
	}
	tracker.Record(ctx, 2, "submit")

	assert.Equal(t, 5, tracker.CurrentCount(1))
	assert.Equal(t, 1, tracker.CurrentCount(2))
	assert.Equal(t, 0, tracker.CurrentCount(3))
	assert.Equal(t, 6, usage.count())
}

func TestRateTrackerNearLimit(t *testing.T) {
	usage := &fakeUsageStore{}
	tracker := newTestRateTracker(usage)

	ctx := context.Background()
	for i := 0; i < 47; i++ {
		tracker.Record(ctx, 1, "submit")
	}
	assert.False(t, tracker.IsNearLimit(1), "47/60 is below the 80%% threshold")

	tracker.Record(ctx, 1, "submit")
	assert.True(t, tracker.IsNearLimit(1), "48/60 crosses the 80%% threshold")
}

func TestRateTrackerWindowRollover(t *testing.T) {
	usage := &fakeUsageStore{}
	tracker := newTestRateTracker(usage)

	now := time.Unix(1_700_000_000, 0)
	tracker.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		tracker.Record(ctx, 1, "submit")
	}
	require.True(t, tracker.IsNearLimit(1))

	// Next window: the in-memory count starts from zero
	now = now.Add(61 * time.Second)
	assert.Equal(t, 0, tracker.CurrentCount(1))
	assert.False(t, tracker.IsNearLimit(1))

	tracker.Record(ctx, 1, "submit")
	assert.Equal(t, 1, tracker.CurrentCount(1))
}

func TestRateTrackerDurableFailureSwallowed(t *testing.T) {
	usage := &fakeUsageStore{err: errors.New("connection refused")}
	tracker := newTestRateTracker(usage)

	// The durable write failing must not panic or lose the in-memory
	// count; that layer stays authoritative for this process.
	tracker.Record(context.Background(), 1, "submit")
	assert.Equal(t, 1, tracker.CurrentCount(1))
}
