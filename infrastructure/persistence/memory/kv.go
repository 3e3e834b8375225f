package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"fluxstore/application/ports"
	pkgerrors "fluxstore/pkg/errors"
)

// KVStore provides an in-memory implementation of the persistence port.
// Used in tests and as the default when no durable store is configured.
type KVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewKVStore creates an empty in-memory store
func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string][]byte)}
}

// Get retrieves the value for a key
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.data[key]
	if !exists {
		return nil, pkgerrors.NewNotFound("key not found: " + key)
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put stores a value under a key
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return pkgerrors.NewValidation("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// Delete removes a key; missing keys are ignored
func (s *KVStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// ListPrefix returns all entries under the prefix ordered by key
func (s *KVStore) ListPrefix(ctx context.Context, prefix string) ([]ports.KVEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []ports.KVEntry
	for key, value := range s.data {
		if strings.HasPrefix(key, prefix) {
			stored := make([]byte, len(value))
			copy(stored, value)
			entries = append(entries, ports.KVEntry{Key: key, Value: stored})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Close is a no-op for the in-memory store
func (s *KVStore) Close() error { return nil }
