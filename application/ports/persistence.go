package ports

import (
	"context"
)

// KVEntry is one key/value pair returned by a prefix scan
type KVEntry struct {
	Key   string
	Value []byte
}

// KVStore is the persistence port: a durable map from string keys to
// serialized records. The value store and execution queue serialize their
// records through it; the encoding is theirs, not the store's. Exact
// engine internals (compaction, indexing) are outside the core.
type KVStore interface {
	// Get retrieves the value for a key; a missing key is a NotFound error
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a value under a key, overwriting any previous value
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes a key; deleting a missing key is a no-op
	Delete(ctx context.Context, key string) error

	// ListPrefix returns all entries whose key starts with the prefix,
	// ordered by key
	ListPrefix(ctx context.Context, prefix string) ([]KVEntry, error)

	// Close releases underlying resources
	Close() error
}
