package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is a bounded in-process Store. Entries are evicted least
// recently used first, and expire lazily on read.
type MemoryStore struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryStore creates a store holding at most size entries.
func NewMemoryStore(size int) (*MemoryStore, error) {
	return newMemoryStore(size, time.Now)
}

func newMemoryStore(size int, now func() time.Time) (*MemoryStore, error) {
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create memory cache: %w", err)
	}
	return &MemoryStore{entries: entries, now: now}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.entries.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, true, nil
}

// Set stores value; a non-positive ttl never expires.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: make([]byte, len(value))}
	copy(entry.value, value)
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries.Add(key, entry)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.entries.Remove(key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored entries, including expired ones not yet read.
func (s *MemoryStore) Len() int {
	return s.entries.Len()
}
