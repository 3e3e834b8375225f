package badgerkv

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"fluxstore/application/ports"
	pkgerrors "fluxstore/pkg/errors"
)

// Config holds configuration for the badger-backed persistence adapter
type Config struct {
	// Path is the directory for database files; ignored when InMemory is set
	Path string
	// InMemory disables disk persistence; useful for tests
	InMemory bool
	// SyncWrites forces a sync on every write for durability
	SyncWrites bool
}

// DefaultConfig returns durable production defaults for the given path
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// Store implements the persistence port on BadgerDB. Safe for concurrent
// use; crash recovery of queue and reference records depends on it.
type Store struct {
	db     *badger.DB
	logger *zap.Logger
}

// badgerLogger adapts zap to BadgerDB's Logger interface
type badgerLogger struct {
	logger *zap.SugaredLogger
}

func (l *badgerLogger) Errorf(format string, args ...interface{})   { l.logger.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...interface{}) { l.logger.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...interface{})    { l.logger.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...interface{})   { l.logger.Debugf(format, args...) }

// Open creates and opens a badger-backed store
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, pkgerrors.NewValidation("path is required for a persistent store")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(&badgerLogger{logger: logger.Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// OpenInMemory opens a throwaway in-memory store for tests
func OpenInMemory(logger *zap.Logger) (*Store, error) {
	return Open(Config{InMemory: true}, logger)
}

// Get retrieves the value for a key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, pkgerrors.NewNotFound("key not found: " + key)
	}
	if err != nil {
		return nil, pkgerrors.NewInternal("badger get failed for "+key, err)
	}
	return value, nil
}

// Put stores a value under a key
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return pkgerrors.NewValidation("key cannot be empty")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return pkgerrors.NewInternal("badger put failed for "+key, err)
	}
	return nil
}

// Delete removes a key; missing keys are ignored
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return pkgerrors.NewInternal("badger delete failed for "+key, err)
	}
	return nil
}

// ListPrefix returns all entries under the prefix ordered by key
func (s *Store) ListPrefix(ctx context.Context, prefix string) ([]ports.KVEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var entries []ports.KVEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entries = append(entries, ports.KVEntry{Key: string(item.KeyCopy(nil)), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.NewInternal("badger scan failed for prefix "+prefix, err)
	}
	return entries, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
