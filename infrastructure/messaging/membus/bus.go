package membus

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fluxstore/domain/events"
	pkgerrors "fluxstore/pkg/errors"
	"fluxstore/pkg/observability"
)

// Event is what the bus carries: a domain event whose subscription tag is
// derivable from the type alone, so a zero value is enough to key a
// subscription.
type Event interface {
	events.DomainEvent
	EventTag() string
}

// sendOutcome reports what happened to one subscriber delivery
type sendOutcome int

const (
	sendOK sendOutcome = iota
	sendClosed
	sendFull
)

// subscriber is one registered delivery channel. The dispatch closure owns
// the typed channel; the registry only sees the type-erased form.
type subscriber struct {
	id       string
	closed   *atomic.Bool
	dispatch func(event events.DomainEvent) sendOutcome
}

// Config holds tuning for the bus
type Config struct {
	// BufferSize is each subscriber channel's capacity
	BufferSize int
	// MaxAttempts bounds PublishWithRetry before dead-lettering
	MaxAttempts int
	// RetryBackoff is the pause between retry attempts
	RetryBackoff time.Duration
	// HistorySize bounds the diagnostic ring of recent events
	HistorySize int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		BufferSize:   64,
		MaxAttempts:  3,
		RetryBackoff: 50 * time.Millisecond,
		HistorySize:  256,
	}
}

// DeadLetter is an event that exhausted its retry attempts
type DeadLetter struct {
	Event     events.DomainEvent
	Attempts  int
	LastError string
	FailedAt  time.Time
}

// Bus is the in-process typed publish/subscribe registry. Delivery is
// FIFO per subscriber, at-most-once, best-effort overall: a publish that
// reaches some but not all live subscribers reports a partial failure and
// does not roll back the successful sends.
//
// Events must be treated as immutable by subscribers; each delivery is a
// struct copy of the published value.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber

	config  Config
	logger  *zap.Logger
	metrics *observability.Collector

	historyMu  sync.Mutex
	history    []events.DomainEvent
	historyCap int

	deadMu      sync.Mutex
	deadLetters []DeadLetter
}

// New creates a bus. metrics may be nil.
func New(config Config, logger *zap.Logger, metrics *observability.Collector) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultConfig().HistorySize
	}
	return &Bus{
		subscribers: make(map[string][]*subscriber),
		config:      config,
		logger:      logger,
		metrics:     metrics,
		historyCap:  config.HistorySize,
	}
}

// Subscribe registers a new delivery channel for the event type T and
// returns its consumer. Subscription order fixes delivery order for that
// consumer relative to each publisher.
func Subscribe[T Event](b *Bus) *Consumer[T] {
	var zero T
	tag := zero.EventTag()

	ch := make(chan T, b.config.BufferSize)
	closed := &atomic.Bool{}

	sub := &subscriber{
		id:     uuid.New().String(),
		closed: closed,
		dispatch: func(event events.DomainEvent) sendOutcome {
			if closed.Load() {
				return sendClosed
			}
			typed, ok := event.(T)
			if !ok {
				return sendClosed
			}
			select {
			case ch <- typed:
				return sendOK
			default:
				return sendFull
			}
		},
	}

	b.mu.Lock()
	b.subscribers[tag] = append(b.subscribers[tag], sub)
	b.mu.Unlock()

	return &Consumer[T]{ch: ch, closed: closed}
}

// Publish delivers the event to every current subscriber of its tag.
// Publishing to zero subscribers is a successful no-op. If some but not
// all deliveries fail the returned error names the failed fraction;
// successful deliveries stand.
func (b *Bus) Publish(event Event) error {
	tag := event.EventTag()
	b.recordHistory(event)

	b.mu.RLock()
	subs := make([]*subscriber, len(b.subscribers[tag]))
	copy(subs, b.subscribers[tag])
	b.mu.RUnlock()

	if len(subs) == 0 {
		b.observe(tag, "no_subscribers")
		return nil
	}

	failed := 0
	anyClosed := false
	for _, sub := range subs {
		switch sub.dispatch(event) {
		case sendOK:
		case sendClosed:
			failed++
			anyClosed = true
		case sendFull:
			failed++
			b.logger.Warn("subscriber channel full, dropping event",
				zap.String("eventType", tag),
				zap.String("subscriber", sub.id),
			)
		}
	}

	// Closed consumers unregister lazily: prune them once a publish has
	// observed the closure.
	if anyClosed {
		b.prune(tag)
	}

	if failed > 0 {
		b.observe(tag, "partial_failure")
		return pkgerrors.NewPartialDelivery(
			fmt.Sprintf("event %s delivered to %d of %d subscribers", tag, len(subs)-failed, len(subs)))
	}

	b.observe(tag, "delivered")
	return nil
}

// PublishWithRetry retries a failing publish up to MaxAttempts, then moves
// the event to the dead-letter list.
func (b *Bus) PublishWithRetry(event Event) error {
	var lastErr error
	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		lastErr = b.Publish(event)
		if lastErr == nil {
			return nil
		}
		if attempt < b.config.MaxAttempts {
			b.logger.Warn("retrying event publication",
				zap.String("eventType", event.EventTag()),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			time.Sleep(b.config.RetryBackoff)
		}
	}

	b.deadMu.Lock()
	b.deadLetters = append(b.deadLetters, DeadLetter{
		Event:     event,
		Attempts:  b.config.MaxAttempts,
		LastError: lastErr.Error(),
		FailedAt:  time.Now(),
	})
	b.deadMu.Unlock()

	if b.metrics != nil {
		b.metrics.BusDeadLetters.Inc()
	}
	b.logger.Error("event moved to dead-letter list",
		zap.String("eventType", event.EventTag()),
		zap.Int("attempts", b.config.MaxAttempts),
		zap.Error(lastErr),
	)
	return lastErr
}

// SubscriberCount returns how many live subscribers the tag has
func (b *Bus) SubscriberCount(tag string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, sub := range b.subscribers[tag] {
		if !sub.closed.Load() {
			count++
		}
	}
	return count
}

// History returns a copy of the recent-event diagnostic ring, oldest first
func (b *Bus) History() []events.DomainEvent {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	out := make([]events.DomainEvent, len(b.history))
	copy(out, b.history)
	return out
}

// DeadLetters returns a copy of the dead-letter list
func (b *Bus) DeadLetters() []DeadLetter {
	b.deadMu.Lock()
	defer b.deadMu.Unlock()

	out := make([]DeadLetter, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// SetHistorySize resizes the diagnostic ring, trimming the oldest entries
// when the new cap is smaller. Non-positive sizes are ignored so a tunables
// file that omits the knob keeps the configured cap.
func (b *Bus) SetHistorySize(size int) {
	if size <= 0 {
		return
	}
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.historyCap = size
	if len(b.history) > size {
		b.history = b.history[len(b.history)-size:]
	}
}

func (b *Bus) recordHistory(event events.DomainEvent) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()

	b.history = append(b.history, event)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
}

func (b *Bus) prune(tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subscribers[tag][:0]
	for _, sub := range b.subscribers[tag] {
		if !sub.closed.Load() {
			kept = append(kept, sub)
		}
	}
	b.subscribers[tag] = kept
}

func (b *Bus) observe(tag, status string) {
	if b.metrics != nil {
		b.metrics.ObservePublish(tag, status)
	}
}
