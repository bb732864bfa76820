package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postwave/postwave/internal/config"
	"github.com/postwave/postwave/internal/models"
	"github.com/postwave/postwave/internal/service/reddit"
)

func activeCredential(id uint, username string, lastUsed *time.Time) *models.Credential {
	expiry := time.Now().Add(2 * time.Hour)
	return &models.Credential{
		ID:           id,
		Username:     username,
		AccessToken:  "token-" + username,
		RefreshToken: "refresh-" + username,
		TokenExpiry:  &expiry,
		Active:       true,
		LastUsedAt:   lastUsed,
	}
}

func newTestAccountService(t *testing.T, creds *fakeCredentialStore, tokenStatus int, tokenBody string) (*AccountService, *RateTracker, *int) {
	t.Helper()
	refreshCalls := 0
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		refreshCalls++
		mu.Unlock()
		w.WriteHeader(tokenStatus)
		w.Write([]byte(tokenBody))
	}))
	t.Cleanup(ts.Close)

	client := reddit.NewClient(reddit.Config{
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		UserAgent:    "postwave-test",
		TokenURL:     ts.URL,
		Timeout:      5 * time.Second,
	}, zap.NewNop())

	rate := NewRateTracker(&config.RateLimitConfig{
		WindowSeconds:     60,
		RequestsPerWindow: 60,
		NearLimitPercent:  80,
	}, &fakeUsageStore{}, zap.NewNop())
	tokens := NewTokenManager(creds, client, zap.NewNop())
	return NewAccountService(creds, rate, tokens, zap.NewNop()), rate, &refreshCalls
}

func TestSelectBestPicksOldestLastUsed(t *testing.T) {
	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-10 * time.Minute)
	creds := newFakeCredentialStore(
		activeCredential(1, "alpha", &newer),
		activeCredential(2, "beta", &older),
	)
	svc, _, _ := newTestAccountService(t, creds, 200, `{"access_token":"x","expires_in":3600}`)

	cred, err := svc.SelectBest(context.Background())

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, uint(2), cred.ID)

	// Selection stamps last-used immediately, before any request
	stored := creds.get(2)
	require.NotNil(t, stored.LastUsedAt)
	assert.True(t, stored.LastUsedAt.After(older))
}

func TestSelectBestPrefersNeverUsed(t *testing.T) {
	used := time.Now().Add(-time.Minute)
	creds := newFakeCredentialStore(
		activeCredential(1, "alpha", &used),
		activeCredential(2, "beta", nil),
	)
	svc, _, _ := newTestAccountService(t, creds, 200, `{}`)

	cred, err := svc.SelectBest(context.Background())

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, uint(2), cred.ID)
}

func TestSelectBestSkipsNearLimitCredential(t *testing.T) {
	// A was valid more recently but sits at 50/60 this window; B at 5
	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-5 * time.Minute)
	creds := newFakeCredentialStore(
		activeCredential(1, "alpha", &older),
		activeCredential(2, "beta", &newer),
	)
	svc, rate, _ := newTestAccountService(t, creds, 200, `{}`)

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		rate.Record(ctx, 1, "submit")
	}
	for i := 0; i < 5; i++ {
		rate.Record(ctx, 2, "submit")
	}

	cred, err := svc.SelectBest(ctx)

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, uint(2), cred.ID)
}

func TestSelectBestSkipsUnusableCredential(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	dead := &models.Credential{ID: 1, Username: "dead", AccessToken: "stale", TokenExpiry: &expired, Active: true}
	creds := newFakeCredentialStore(dead, activeCredential(2, "beta", nil))
	svc, _, _ := newTestAccountService(t, creds, 200, `{}`)

	cred, err := svc.SelectBest(context.Background())

	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, uint(2), cred.ID)
}

func TestSelectBestReturnsNilWhenPoolEmpty(t *testing.T) {
	creds := newFakeCredentialStore()
	svc, _, _ := newTestAccountService(t, creds, 200, `{}`)

	cred, err := svc.SelectBest(context.Background())

	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestRotateMutualExclusion(t *testing.T) {
	// One credential whose token is expired: rotation must refresh it
	// exactly once no matter how many callers race.
	expiry := time.Now().Add(-time.Hour)
	cred := &models.Credential{
		ID:           1,
		Username:     "solo",
		AccessToken:  "stale",
		RefreshToken: "refresh-solo",
		TokenExpiry:  &expiry,
		Active:       true,
	}
	creds := newFakeCredentialStore(cred)
	svc, _, refreshCalls := newTestAccountService(t, creds, 200, `{"access_token":"fresh","expires_in":3600}`)

	const callers = 16
	var wg sync.WaitGroup
	results := make([]*models.Credential, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Rotate(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, uint(1), results[i].ID)
	}
	assert.Equal(t, uint(1), svc.Current())
	assert.Equal(t, 1, *refreshCalls, "awaiting callers must not start their own refresh")
}

func TestAcquireReusesHealthyCurrent(t *testing.T) {
	creds := newFakeCredentialStore(activeCredential(1, "alpha", nil))
	svc, _, refreshCalls := newTestAccountService(t, creds, 200, `{}`)

	first, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	second, err := svc.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 0, *refreshCalls)
}

func TestInvalidateForcesRotation(t *testing.T) {
	creds := newFakeCredentialStore(
		activeCredential(1, "alpha", nil),
		activeCredential(2, "beta", nil),
	)
	svc, _, _ := newTestAccountService(t, creds, 200, `{}`)

	first, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	svc.Invalidate(first.ID)
	assert.Equal(t, uint(0), svc.Current())

	second, err := svc.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, second)
}
