package execqueue

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"fluxstore/application/ports"
	"fluxstore/domain/core/valueobjects"
	pkgerrors "fluxstore/pkg/errors"
	"fluxstore/pkg/observability"
)

// EntryState is the lifecycle state of one queued execution
type EntryState string

const (
	StatePending   EntryState = "pending"
	StateRunning   EntryState = "running"
	StateCompleted EntryState = "completed"
	StateFailed    EntryState = "failed"
)

const queueKeyPrefix = "queue/"

// Entry is one durable record of a scheduled execution
type Entry struct {
	TransformID valueobjects.TransformID `json:"transform_id"`
	State       EntryState               `json:"state"`
	EnqueuedAt  time.Time                `json:"enqueued_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	LastError   string                   `json:"last_error,omitempty"`
}

// Status is the observable count of entries per state
type Status struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Queue is the durable execution log. Triggering is immediate in the
// current design, so the queue is bookkeeping: it records what is pending
// or in flight so a restart can tell what was interrupted, and it feeds
// the status surface. Enqueue is idempotent per transform ID.
type Queue struct {
	mu        sync.Mutex
	kv        ports.KVStore
	entries   map[valueobjects.TransformID]*Entry
	retention time.Duration
	logger    *zap.Logger
	metrics   *observability.Collector
}

// New creates a queue and reloads any entries persisted by an earlier
// run. Entries found in the running state were interrupted by a crash and
// go back to pending.
func New(ctx context.Context, kv ports.KVStore, logger *zap.Logger, metrics *observability.Collector) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		kv:      kv,
		entries: make(map[valueobjects.TransformID]*Entry),
		logger:  logger,
		metrics: metrics,
	}

	persisted, err := kv.ListPrefix(ctx, queueKeyPrefix)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load execution queue")
	}
	for _, kvEntry := range persisted {
		var entry Entry
		if err := json.Unmarshal(kvEntry.Value, &entry); err != nil {
			return nil, pkgerrors.NewInternal("corrupt queue record at "+kvEntry.Key, err)
		}
		if entry.State == StateRunning {
			entry.State = StatePending
			entry.UpdatedAt = time.Now()
			if err := q.persist(ctx, &entry); err != nil {
				return nil, err
			}
			logger.Warn("recovered interrupted execution",
				zap.String("transformID", entry.TransformID.String()),
			)
		}
		q.entries[entry.TransformID] = &entry
	}

	q.updateDepth()
	return q, nil
}

// Enqueue records a pending execution. Enqueuing a transform that is
// already pending or running is a no-op, not a duplicate entry.
func (q *Queue) Enqueue(ctx context.Context, transformID valueobjects.TransformID) error {
	if transformID == "" {
		return pkgerrors.NewValidation("transform ID cannot be empty")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.entries[transformID]; ok {
		if existing.State == StatePending || existing.State == StateRunning {
			return nil
		}
	}

	now := time.Now()
	entry := &Entry{
		TransformID: transformID,
		State:       StatePending,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
	if err := q.persist(ctx, entry); err != nil {
		return err
	}
	q.entries[transformID] = entry
	q.pruneLocked(ctx)
	q.updateDepth()
	return nil
}

// SetRetention sets how long completed and failed entries are kept before
// pruning; non-positive disables pruning. The new retention applies
// immediately and on every subsequent enqueue.
func (q *Queue) SetRetention(ctx context.Context, retention time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.retention = retention
	q.pruneLocked(ctx)
	q.updateDepth()
}

func (q *Queue) pruneLocked(ctx context.Context) {
	if q.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-q.retention)
	for transformID, entry := range q.entries {
		if entry.State != StateCompleted && entry.State != StateFailed {
			continue
		}
		if entry.UpdatedAt.After(cutoff) {
			continue
		}
		if err := q.kv.Delete(ctx, queueKeyPrefix+transformID.String()); err != nil {
			q.logger.Warn("failed to prune queue entry",
				zap.String("transformID", transformID.String()),
				zap.Error(err),
			)
			continue
		}
		delete(q.entries, transformID)
	}
}

// Peek returns the oldest pending entry without changing its state
func (q *Queue) Peek() (*Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := q.oldestPending()
	if entry == nil {
		return nil, false
	}
	copied := *entry
	return &copied, true
}

// Dequeue moves the oldest pending entry to running and returns it
func (q *Queue) Dequeue(ctx context.Context) (*Entry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := q.oldestPending()
	if entry == nil {
		return nil, false, nil
	}
	entry.State = StateRunning
	entry.UpdatedAt = time.Now()
	if err := q.persist(ctx, entry); err != nil {
		return nil, false, err
	}
	q.updateDepth()
	copied := *entry
	return &copied, true, nil
}

// MarkRunning flags a transform's entry as in flight
func (q *Queue) MarkRunning(ctx context.Context, transformID valueobjects.TransformID) error {
	return q.transition(ctx, transformID, StateRunning, "")
}

// MarkCompleted flags a transform's entry as finished successfully
func (q *Queue) MarkCompleted(ctx context.Context, transformID valueobjects.TransformID) error {
	return q.transition(ctx, transformID, StateCompleted, "")
}

// MarkFailed flags a transform's entry as failed with the error text
func (q *Queue) MarkFailed(ctx context.Context, transformID valueobjects.TransformID, cause string) error {
	return q.transition(ctx, transformID, StateFailed, cause)
}

// Status counts entries per state for the observability surface
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	var status Status
	for _, entry := range q.entries {
		switch entry.State {
		case StatePending:
			status.Pending++
		case StateRunning:
			status.Running++
		case StateCompleted:
			status.Completed++
		case StateFailed:
			status.Failed++
		}
	}
	return status
}

// Entries returns a snapshot of all entries sorted by enqueue time
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, 0, len(q.entries))
	for _, entry := range q.entries {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out
}

func (q *Queue) transition(ctx context.Context, transformID valueobjects.TransformID, state EntryState, cause string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, ok := q.entries[transformID]
	if !ok {
		return pkgerrors.NewNotFound("no queue entry for transform " + transformID.String())
	}
	entry.State = state
	entry.LastError = cause
	entry.UpdatedAt = time.Now()
	if err := q.persist(ctx, entry); err != nil {
		return err
	}
	q.updateDepth()
	return nil
}

func (q *Queue) oldestPending() *Entry {
	var oldest *Entry
	for _, entry := range q.entries {
		if entry.State != StatePending {
			continue
		}
		if oldest == nil || entry.EnqueuedAt.Before(oldest.EnqueuedAt) {
			oldest = entry
		}
	}
	return oldest
}

func (q *Queue) persist(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return pkgerrors.NewInternal("encode queue entry", err)
	}
	return pkgerrors.Wrap(q.kv.Put(ctx, queueKeyPrefix+entry.TransformID.String(), data), "persist queue entry")
}

func (q *Queue) updateDepth() {
	if q.metrics == nil {
		return
	}
	pending := 0
	for _, entry := range q.entries {
		if entry.State == StatePending {
			pending++
		}
	}
	q.metrics.QueueDepth.Set(float64(pending))
}
