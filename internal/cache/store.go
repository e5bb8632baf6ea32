package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/home-maintenance-service/internal/models"
)

// Store is the persistence backend for ZIP cache entries. Get returns the raw entry,
// expired or not; expiry policy lives in ZipCache so every backend evicts the same way.
type Store interface {
	Get(ctx context.Context, zip string) (models.ZipCacheEntry, bool, error)
	Set(ctx context.Context, entry models.ZipCacheEntry) error
	Delete(ctx context.Context, zip string) error
	// SweepExpired removes entries whose ExpiresAt is at or before now and returns the count.
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// InMemoryStore implements Store with a mutex-guarded map. Used for dev and tests;
// entries do not survive a restart and are not shared across replicas.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string]models.ZipCacheEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]models.ZipCacheEntry),
	}
}

// Get returns the stored entry for zip.
func (s *InMemoryStore) Get(ctx context.Context, zip string) (models.ZipCacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.ZipCacheEntry{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.data[zip]
	return entry, ok, nil
}

// Set upserts the entry keyed by entry.ZipCode.
func (s *InMemoryStore) Set(ctx context.Context, entry models.ZipCacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[entry.ZipCode] = entry
	return nil
}

// Delete removes zip. Deleting a missing key is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, zip string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, zip)
	return nil
}

// SweepExpired removes every entry expired at now.
func (s *InMemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for zip, entry := range s.data {
		if entry.Expired(now) {
			delete(s.data, zip)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
