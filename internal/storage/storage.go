// Package storage defines the key/value persistence capability used for
// alerts, clusters, profiles and rules.
package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// Keys of the durable engine state.
const (
	KeyAlerts   = "alerts"
	KeyClusters = "clusters"
	KeyProfiles = "profiles"
	KeyRules    = "rules"
)

// Store is a JSON key/value store. Load leaves dst untouched and returns
// false when the key does not exist, so callers pre-fill dst with defaults.
type Store interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

// Entry is one key/value pair of a batch.
type Entry struct {
	Key   string
	Value any
}

// Snapshotter is scheduled in place of a value that is expensive to build.
// The writer calls Snapshot once per flush, on its own goroutine.
type Snapshotter interface {
	Snapshot() any
}

// BatchStore saves several keys atomically.
type BatchStore interface {
	SaveBatch(ctx context.Context, entries []Entry) error
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string, dst any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}
