package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/postwave/postwave/internal/models"
)

// In-memory stores used across the service tests.

type fakeCredentialStore struct {
	mu         sync.Mutex
	creds      map[uint]*models.Credential
	updateErr  error
	refreshes  int
	lastSynced map[uint]time.Time
}

func newFakeCredentialStore(creds ...*models.Credential) *fakeCredentialStore {
	s := &fakeCredentialStore{
		creds:      make(map[uint]*models.Credential),
		lastSynced: make(map[uint]time.Time),
	}
	for _, c := range creds {
		cp := *c
		s.creds[c.ID] = &cp
	}
	return s
}

func (s *fakeCredentialStore) GetByID(_ context.Context, id uint) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		return nil, fmt.Errorf("credential %d: not found", id)
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCredentialStore) ListActive(_ context.Context) ([]models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Credential
	for _, c := range s.creds {
		if c.Active {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeCredentialStore) TouchLastUsed(_ context.Context, id uint, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.creds[id]; ok {
		stamp := t
		c.LastUsedAt = &stamp
	}
	return nil
}

func (s *fakeCredentialStore) UpdateTokens(_ context.Context, id uint, accessToken string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.updateErr != nil {
		return s.updateErr
	}
	if c, ok := s.creds[id]; ok {
		c.AccessToken = accessToken
		exp := expiry
		c.TokenExpiry = &exp
	}
	return nil
}

func (s *fakeCredentialStore) UpdateLastSynced(_ context.Context, id uint, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSynced[id] = t
	return nil
}

func (s *fakeCredentialStore) get(id uint) models.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.creds[id]
}

type fakePostStore struct {
	mu     sync.Mutex
	posts  map[uint]*models.CampaignPost
	nextID uint
}

func newFakePostStore(posts ...*models.CampaignPost) *fakePostStore {
	s := &fakePostStore{posts: make(map[uint]*models.CampaignPost), nextID: 1000}
	for _, p := range posts {
		cp := *p
		s.posts[p.ID] = &cp
	}
	return s
}

func (s *fakePostStore) Create(_ context.Context, post *models.CampaignPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	post.ID = s.nextID
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *fakePostStore) DuePosts(_ context.Context, now time.Time) ([]models.CampaignPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.CampaignPost
	for _, p := range s.posts {
		if p.Status == models.PostStatusScheduled && !p.ScheduledFor.After(now) {
			due = append(due, *p)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ScheduledFor.Before(due[j].ScheduledFor) })
	return due, nil
}

func (s *fakePostStore) Claim(_ context.Context, id uint, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.Status != models.PostStatusScheduled {
		return false, nil
	}
	p.Status = models.PostStatusProcessing
	stamp := now
	p.ProcessingStartedAt = &stamp
	return true, nil
}

func (s *fakePostStore) MarkPosted(_ context.Context, id uint, postedAt time.Time, execMs int64, redditID, permalink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.posts[id]
	p.Status = models.PostStatusPosted
	stamp := postedAt
	p.PostedAt = &stamp
	p.ExecutionTimeMs = execMs
	p.RedditPostID = redditID
	p.RedditPermalink = permalink
	p.LastError = ""
	return nil
}

func (s *fakePostStore) MarkFailed(_ context.Context, id uint, attemptedAt time.Time, execMs int64, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.posts[id]
	p.Status = models.PostStatusFailed
	stamp := attemptedAt
	p.PostedAt = &stamp
	p.ExecutionTimeMs = execMs
	p.LastError = lastError
	return nil
}

func (s *fakePostStore) get(id uint) models.CampaignPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.posts[id]
}

func (s *fakePostStore) all() []models.CampaignPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CampaignPost
	for _, p := range s.posts {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type usageIncrement struct {
	CredentialID uint
	WindowStart  int64
	Endpoint     string
}

type fakeUsageStore struct {
	mu         sync.Mutex
	increments []usageIncrement
	err        error
}

func (s *fakeUsageStore) Increment(_ context.Context, credentialID uint, windowStart int64, endpoint string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.increments = append(s.increments, usageIncrement{credentialID, windowStart, endpoint})
	return nil
}

func (s *fakeUsageStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.increments)
}

type fakeActivityStore struct {
	mu      sync.Mutex
	records []models.ActivityRecord
	err     error
}

func (s *fakeActivityStore) Append(_ context.Context, rec *models.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeActivityStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, r := range s.records {
		out = append(out, r.Action)
	}
	return out
}

type fakeSyncedPostStore struct {
	mu         sync.Mutex
	existing   map[string]bool
	inserted   []models.SyncedPost
	batchSizes []int
}

func newFakeSyncedPostStore(existing ...string) *fakeSyncedPostStore {
	s := &fakeSyncedPostStore{existing: make(map[string]bool)}
	for _, id := range existing {
		s.existing[id] = true
	}
	return s
}

func (s *fakeSyncedPostStore) ExistingIDs(_ context.Context, redditIDs []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range redditIDs {
		if s.existing[id] {
			out[id] = true
		}
	}
	return out, nil
}

func (s *fakeSyncedPostStore) InsertBatch(_ context.Context, posts []models.SyncedPost, batchSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, posts...)
	s.batchSizes = append(s.batchSizes, batchSize)
	for _, p := range posts {
		s.existing[p.RedditPostID] = true
	}
	return nil
}
