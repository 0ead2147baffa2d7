package memstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/target/bulkmail/internal/data"
)

type idemEntry struct {
	value     string
	expiresAt time.Time
}

// Idempotency is an in-memory core.IdempotencyStore.
type Idempotency struct {
	mu      sync.Mutex
	entries map[string]idemEntry
	clock   data.TimeProvider
}

// NewIdempotency creates an empty store. A nil clock uses wall time.
func NewIdempotency(clock data.TimeProvider) *Idempotency {
	if clock == nil {
		clock = data.RealTimeProvider{}
	}
	return &Idempotency{entries: make(map[string]idemEntry), clock: clock}
}

// Reserve claims key unless a live entry exists.
func (s *Idempotency) Reserve(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	if key == "" {
		return "", false, errors.New("key cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return e.value, false, nil
	}
	s.entries[key] = idemEntry{value: data.IdempotencyPending, expiresAt: now.Add(ttl)}
	return "", true, nil
}

// Bind stores jobID under key.
func (s *Idempotency) Bind(_ context.Context, key, jobID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = idemEntry{value: jobID, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

// Release forgets key.
func (s *Idempotency) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
