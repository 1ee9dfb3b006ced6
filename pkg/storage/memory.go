package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements an in-memory run cache.
// It is safe for concurrent use by multiple goroutines.
//
// Without a TTL entries are never evicted, so the cache grows with the number
// of distinct runs ever selected. With a TTL a background goroutine drops
// entries that have not been refreshed within the TTL; since selected runs are
// rewritten every poll interval, only runs nobody has selected for a while age
// out.
type MemoryStore struct {
	mu            sync.RWMutex
	entries       map[string]Entry
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates a new in-memory run cache with no TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// NewMemoryStoreWithTTL creates an in-memory run cache that removes entries
// older than ttl every cleanupInterval.
//
// Stop must be called when the store is no longer needed to release the
// cleanup goroutine.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		entries:       make(map[string]Entry),
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the cleanup goroutine and blocks until it has exited.
// Calling Stop multiple times or on a store without TTL is safe.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

// Close implements io.Closer so callers can release any store uniformly.
func (s *MemoryStore) Close() error {
	s.Stop()
	return nil
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := time.Now()
	for run, entry := range s.entries {
		if now.Sub(entry.FetchedAt) > s.ttl {
			delete(s.entries, run)
		}
	}
}

// Put stores entry, replacing any existing entry for the same run.
// A zero FetchedAt is set to the current time.
func (s *MemoryStore) Put(ctx context.Context, entry Entry) error {
	if entry.Run == "" {
		return fmt.Errorf("entry run cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Run] = entry
	return nil
}

// Get returns the cached entry for run.
func (s *MemoryStore) Get(ctx context.Context, run string) (Entry, bool, error) {
	select {
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, found := s.entries[run]
	return entry, found, nil
}

// Len returns the number of cached runs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Delete removes the entry for run and reports whether one existed.
func (s *MemoryStore) Delete(run string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.entries[run]
	delete(s.entries, run)
	return existed
}
