package archive

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotArchived indicates replay was requested for a key never recorded
	ErrNotArchived = errors.New("request not archived")

	// ErrInvalidEntry indicates the stored entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid archive entry")
)

// Store persists archive entries by key.
type Store interface {
	// Put stores entry under entry.Key, replacing any previous entry.
	Put(ctx context.Context, entry *Entry) error

	// Get returns the entry for key or ErrNotArchived.
	Get(ctx context.Context, key string) (*Entry, error)

	// Close releases the backend.
	Close() error
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, entry *Entry) error {
	if entry == nil {
		return errors.New("archive entry cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = *entry
	ArchiveWrites.WithLabelValues("memory", entry.Outcome()).Inc()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok {
		ArchiveMisses.Inc()
		return nil, ErrNotArchived
	}
	ArchiveHits.WithLabelValues("memory").Inc()
	return &entry, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
