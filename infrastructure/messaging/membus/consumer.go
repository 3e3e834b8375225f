package membus

import (
	"context"
	"sync/atomic"
	"time"

	pkgerrors "fluxstore/pkg/errors"
)

// Consumer is one subscriber's receiving end. Waiting on a consumer is the
// only intended blocking point in the core.
type Consumer[T Event] struct {
	ch     chan T
	closed *atomic.Bool
}

// Poll returns the next buffered event without blocking; the second result
// is false when nothing is waiting.
func (c *Consumer[T]) Poll() (T, bool) {
	select {
	case event := <-c.ch:
		return event, true
	default:
		var zero T
		return zero, false
	}
}

// Receive blocks until an event arrives or the context is done
func (c *Consumer[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	if c.closed.Load() {
		// Drain anything delivered before the close.
		select {
		case event := <-c.ch:
			return event, nil
		default:
			return zero, pkgerrors.NewConflict("consumer is closed")
		}
	}
	select {
	case event := <-c.ch:
		return event, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// ReceiveTimeout blocks for at most the given duration
func (c *Consumer[T]) ReceiveTimeout(timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Receive(ctx)
}

// Close marks the consumer dead. The bus notices on its next publish to
// this tag, counts the failed send, and unregisters the entry.
func (c *Consumer[T]) Close() {
	c.closed.Store(true)
}
