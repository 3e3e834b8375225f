package breaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"fluxstore/application/ports"
	pkgerrors "fluxstore/pkg/errors"
)

// Config holds configuration for the persistence circuit breaker
type Config struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultConfig returns a default configuration for the circuit breaker
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// KVStore wraps a persistence adapter with a circuit breaker so a failing
// disk cannot wedge the trigger loop: once the breaker opens, calls fail
// fast until the backing store recovers.
type KVStore struct {
	inner ports.KVStore
	cb    *gobreaker.CircuitBreaker
}

// Wrap builds the circuit-breaking decorator around a store
func Wrap(inner ports.KVStore, config Config, logger *zap.Logger) *KVStore {
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only trip if we have enough requests to make a decision
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		// A missing key is an answer, not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || pkgerrors.IsNotFound(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &KVStore{inner: inner, cb: cb}
}

// Get retrieves the value for a key through the breaker
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Put stores a value under a key through the breaker
func (s *KVStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Put(ctx, key, value)
	})
	return err
}

// Delete removes a key through the breaker
func (s *KVStore) Delete(ctx context.Context, key string) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.Delete(ctx, key)
	})
	return err
}

// ListPrefix scans entries under the prefix through the breaker
func (s *KVStore) ListPrefix(ctx context.Context, prefix string) ([]ports.KVEntry, error) {
	result, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.ListPrefix(ctx, prefix)
	})
	if err != nil {
		return nil, err
	}
	return result.([]ports.KVEntry), nil
}

// Close closes the wrapped store directly; shutdown should not be gated by
// breaker state
func (s *KVStore) Close() error {
	return s.inner.Close()
}
