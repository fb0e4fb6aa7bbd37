package memory

import (
	"context"
	"sync"
	"time"

	"stayhub/internal/app/middleware"
)

// IdempotencyStore keeps command outcomes until they expire. The first
// outcome saved under a key wins, matching the database stores.
type IdempotencyStore struct {
	TTL time.Duration
	Now func() time.Time

	mu      sync.Mutex
	entries map[string]idempotencyEntry
}

type idempotencyEntry struct {
	rec     middleware.IdempotencyRecord
	expires time.Time
}

func NewIdempotencyStore(ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{TTL: ttl, Now: time.Now, entries: make(map[string]idempotencyEntry)}
}

func (s *IdempotencyStore) Get(_ context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || s.expired(e) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return e.rec, true, nil
}

func (s *IdempotencyStore) Save(_ context.Context, rec middleware.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, k)
		}
	}
	if _, taken := s.entries[rec.Key]; taken {
		return nil
	}
	e := idempotencyEntry{rec: rec}
	if s.TTL > 0 {
		e.expires = s.Now().Add(s.TTL)
	}
	s.entries[rec.Key] = e
	return nil
}

func (s *IdempotencyStore) expired(e idempotencyEntry) bool {
	return !e.expires.IsZero() && !s.Now().Before(e.expires)
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
