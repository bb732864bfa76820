package service

import (
	"context"
	"fmt"
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

type syncEnv struct {
	creds  *fakeCredentialStore
	synced *fakeSyncedPostStore
	sync   *PostSync

	mu         sync.Mutex
	listCalls  int
	listedBody string
}

func listedChild(id, subreddit, title string) string {
	return fmt.Sprintf(`{"data":{"id":%q,"subreddit":%q,"title":%q,"permalink":"/r/%s/comments/%s/","created_utc":1700000000}}`,
		id, subreddit, title, subreddit, id)
}

func newSyncEnv(t *testing.T, creds *fakeCredentialStore, synced *fakeSyncedPostStore, listedBody string) *syncEnv {
	t.Helper()
	env := &syncEnv{creds: creds, synced: synced, listedBody: listedBody}

	mux := http.NewServeMux()
	mux.HandleFunc("/user/", func(w http.ResponseWriter, r *http.Request) {
		env.mu.Lock()
		env.listCalls++
		body := env.listedBody
		env.mu.Unlock()
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		w.Write([]byte(body))
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"renewed","expires_in":3600}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	client := reddit.NewClient(reddit.Config{
		ClientID:     "app-id",
		ClientSecret: "app-secret",
		UserAgent:    "postwave-test",
		BaseURL:      ts.URL,
		TokenURL:     ts.URL + "/token",
		Timeout:      5 * time.Second,
	}, zap.NewNop())

	rate := NewRateTracker(&config.RateLimitConfig{
		WindowSeconds:     60,
		RequestsPerWindow: 60,
		NearLimitPercent:  80,
	}, &fakeUsageStore{}, zap.NewNop())
	tokens := NewTokenManager(creds, client, zap.NewNop())

	cfg := &config.SyncConfig{
		Enabled:      true,
		Interval:     "1h",
		FetchLimit:   50,
		InsertBatch:  10,
		AccountDelay: "1ms",
	}
	env.sync = NewPostSync(cfg, zap.NewNop(), creds, synced, tokens, rate, client)
	env.sync.retry = RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxJitter: 0}
	return env
}

func TestSyncAccountStoresOnlyUnseenPosts(t *testing.T) {
	creds := newFakeCredentialStore(activeCredential(1, "alpha", nil))
	synced := newFakeSyncedPostStore("seen1", "seen2")
	body := fmt.Sprintf(`{"data":{"children":[%s,%s,%s]}}`,
		listedChild("seen1", "golang", "Old one"),
		listedChild("fresh1", "golang", "New one"),
		listedChild("seen2", "rust", "Old two"))
	env := newSyncEnv(t, creds, synced, body)

	hadNew, err := env.sync.SyncAccount(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, hadNew)
	require.Len(t, synced.inserted, 1)
	got := synced.inserted[0]
	assert.Equal(t, "fresh1", got.RedditPostID)
	assert.Equal(t, uint(1), got.CredentialID)
	assert.Equal(t, "golang", got.Subreddit)
	assert.Equal(t, "New one", got.Title)
	require.NotNil(t, got.PostedAt)
	assert.Equal(t, int64(1700000000), got.PostedAt.Unix())
	assert.Equal(t, []int{10}, synced.batchSizes)
}

func TestSyncAccountZeroNewStillStampsLastSynced(t *testing.T) {
	creds := newFakeCredentialStore(activeCredential(1, "alpha", nil))
	synced := newFakeSyncedPostStore("seen1")
	body := fmt.Sprintf(`{"data":{"children":[%s]}}`, listedChild("seen1", "golang", "Old"))
	env := newSyncEnv(t, creds, synced, body)

	hadNew, err := env.sync.SyncAccount(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, hadNew)
	assert.Empty(t, synced.inserted)

	// Finding nothing new is still a completed sync
	creds.mu.Lock()
	_, stamped := creds.lastSynced[1]
	creds.mu.Unlock()
	assert.True(t, stamped)
}

func TestSyncAccountSkipsEntriesWithoutID(t *testing.T) {
	creds := newFakeCredentialStore(activeCredential(1, "alpha", nil))
	synced := newFakeSyncedPostStore()
	body := fmt.Sprintf(`{"data":{"children":[{"data":{"subreddit":"golang","title":"No id"}},%s]}}`,
		listedChild("good1", "golang", "Has id"))
	env := newSyncEnv(t, creds, synced, body)

	hadNew, err := env.sync.SyncAccount(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, hadNew)
	require.Len(t, synced.inserted, 1)
	assert.Equal(t, "good1", synced.inserted[0].RedditPostID)
}

func TestSyncAccountRefreshesExpiredTokenFirst(t *testing.T) {
	cred := expiredCredential()
	cred.Username = "alpha"
	creds := newFakeCredentialStore(cred)
	synced := newFakeSyncedPostStore()
	body := fmt.Sprintf(`{"data":{"children":[%s]}}`, listedChild("p1", "golang", "Post"))
	env := newSyncEnv(t, creds, synced, body)

	hadNew, err := env.sync.SyncAccount(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, hadNew)
	assert.Equal(t, "renewed", creds.get(1).AccessToken)
}

func TestSyncAllCountsAccountsWithNewPosts(t *testing.T) {
	creds := newFakeCredentialStore(
		activeCredential(1, "alpha", nil),
		activeCredential(2, "beta", nil),
	)
	synced := newFakeSyncedPostStore()
	// Both accounts list the same post: the first sync inserts it, the
	// second dedupes against it.
	body := fmt.Sprintf(`{"data":{"children":[%s]}}`, listedChild("shared1", "golang", "Post"))
	env := newSyncEnv(t, creds, synced, body)

	count := env.sync.SyncAll(context.Background())

	assert.Equal(t, 1, count)
	assert.Len(t, synced.inserted, 1)
	env.mu.Lock()
	defer env.mu.Unlock()
	assert.Equal(t, 2, env.listCalls)
}

func TestSyncAllContinuesAfterAccountFailure(t *testing.T) {
	creds := newFakeCredentialStore(
		&models.Credential{ID: 1, Username: "broken", AccessToken: "stale", Active: true},
		activeCredential(2, "beta", nil),
	)
	synced := newFakeSyncedPostStore()
	body := fmt.Sprintf(`{"data":{"children":[%s]}}`, listedChild("p1", "golang", "Post"))
	env := newSyncEnv(t, creds, synced, body)

	// Credential 1 has no refresh token and an unusable access token, so
	// its sync fails before any listing; credential 2 still syncs.
	count := env.sync.SyncAll(context.Background())

	assert.Equal(t, 1, count)
	require.Len(t, synced.inserted, 1)
	assert.Equal(t, uint(2), synced.inserted[0].CredentialID)
}
