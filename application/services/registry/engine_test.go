package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fluxstore/application/ports"
	"fluxstore/application/services/execqueue"
	"fluxstore/application/services/valuestore"
	"fluxstore/domain/core/entities"
	"fluxstore/domain/core/valueobjects"
	"fluxstore/domain/events"
	"fluxstore/infrastructure/messaging/membus"
	"fluxstore/infrastructure/persistence/memory"
	pkgerrors "fluxstore/pkg/errors"
)

type engineHarness struct {
	kv      ports.KVStore
	bus     *membus.Bus
	store   *valuestore.Store
	catalog *valuestore.Catalog
	queue   *execqueue.Queue
	engine  *Engine
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()
	return harnessOn(t, memory.NewKVStore())
}

// harnessOn builds a full engine stack over an existing KV store, so tests
// can simulate a restart by reusing the store.
func harnessOn(t *testing.T, kv ports.KVStore) *engineHarness {
	t.Helper()
	logger := zap.NewNop()
	bus := membus.New(membus.DefaultConfig(), logger, nil)
	store := valuestore.NewStore(kv, logger, nil)
	catalog := valuestore.NewCatalog(store)
	queue, err := execqueue.New(context.Background(), kv, logger, nil)
	require.NoError(t, err)
	engine := NewEngine(NewDependencyIndex(), catalog, store, bus, queue, kv, logger, nil)
	return &engineHarness{kv: kv, bus: bus, store: store, catalog: catalog, queue: queue, engine: engine}
}

// setField writes a value to a single field, creating it on demand,
// exactly like an external writer would ahead of a trigger.
func (h *engineHarness) setField(t *testing.T, ctx context.Context, path string, value interface{}) valueobjects.FieldPath {
	t.Helper()
	fieldPath, err := valueobjects.ParseFieldPath(path)
	require.NoError(t, err)
	field, err := h.catalog.EnsureSingleField(ctx, fieldPath)
	require.NoError(t, err)

	ref, err := h.store.GetSingleReference(ctx, field.ReferenceID())
	require.NoError(t, err)
	var previous valueobjects.AtomID
	if !ref.IsEmpty() {
		previous = ref.CurrentAtom()
	}
	atom, err := h.store.CreateAtom(ctx, fieldPath.Schema(), "test", previous, value, entities.AtomStatusActive)
	require.NoError(t, err)
	_, err = h.store.UpdateSingleReference(ctx, field.ReferenceID(), atom.ID(), "test")
	require.NoError(t, err)
	return fieldPath
}

func (h *engineHarness) readField(t *testing.T, ctx context.Context, path string) interface{} {
	t.Helper()
	fieldPath, err := valueobjects.ParseFieldPath(path)
	require.NoError(t, err)
	value, err := h.catalog.ReadField(ctx, fieldPath)
	require.NoError(t, err)
	return value
}

func TestEngine_RegisterRejectsInvalidRequests(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterRequest
	}{
		{"missing logic", RegisterRequest{ID: "t-1", Output: "B.z"}},
		{"missing output", RegisterRequest{ID: "t-1", Logic: "1 + 1"}},
		{"missing id", RegisterRequest{Logic: "1 + 1", Output: "B.z"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := h.engine.Register(ctx, tc.req)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}

	t.Run("unparseable logic", func(t *testing.T) {
		err := h.engine.Register(ctx, RegisterRequest{ID: "t-bad", Logic: "1 +", Output: "B.z"})
		assert.Error(t, err)
		_, stateErr := h.engine.State("t-bad")
		assert.True(t, pkgerrors.IsNotFound(stateErr))
	})
}

func TestEngine_RegisterInfersInputsFromLogic(t *testing.T) {
	// Arrange
	h := newEngineHarness(t)
	ctx := context.Background()

	// Act: no declared inputs, so the logic's field accesses become them
	err := h.engine.Register(ctx, RegisterRequest{
		ID:     "t-sum",
		Logic:  "A.x + A.y",
		Output: "B.z",
	})

	// Assert
	require.NoError(t, err)
	forX, err := h.engine.GetTransformsForField("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.TransformID{"t-sum"}, forX)
	forY, err := h.engine.GetTransformsForField("A", "y")
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.TransformID{"t-sum"}, forY)

	state, err := h.engine.State("t-sum")
	require.NoError(t, err)
	assert.Equal(t, entities.TransformStateRegistered, state)
}

func TestEngine_CascadeComputesDependentChain(t *testing.T) {
	// Arrange: t-sum feeds B.z, t-double feeds C.w from B.z
	h := newEngineHarness(t)
	ctx := context.Background()
	h.setField(t, ctx, "A.x", 2.0)
	trigger := h.setField(t, ctx, "A.y", 3.0)

	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-sum", Logic: "A.x + A.y", Output: "B.z",
	}))
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-double", Logic: "B.z * 2", Output: "C.w",
	}))

	// Act
	h.engine.OnFieldValueSet(ctx, events.NewFieldValueSet(trigger, 3.0, "test"))

	// Assert: both stages ran, in order
	assert.Equal(t, 5.0, h.readField(t, ctx, "B.z"))
	assert.Equal(t, 10.0, h.readField(t, ctx, "C.w"))

	for _, id := range []valueobjects.TransformID{"t-sum", "t-double"} {
		state, err := h.engine.State(id)
		require.NoError(t, err)
		assert.Equal(t, entities.TransformStateSucceeded, state)
	}
	assert.Equal(t, 2, h.queue.Status().Completed)
}

func TestEngine_UnchangedResultStopsCascade(t *testing.T) {
	// Arrange
	h := newEngineHarness(t)
	ctx := context.Background()
	h.setField(t, ctx, "A.x", 2.0)
	trigger := h.setField(t, ctx, "A.y", 3.0)
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-sum", Logic: "A.x + A.y", Output: "B.z",
	}))
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-double", Logic: "B.z * 2", Output: "C.w",
	}))

	h.engine.OnFieldValueSet(ctx, events.NewFieldValueSet(trigger, 3.0, "test"))
	eventsAfterFirst := len(h.bus.History())
	require.Equal(t, 5.0, h.readField(t, ctx, "B.z"))

	// Act: same inputs again
	h.engine.OnFieldValueSet(ctx, events.NewFieldValueSet(trigger, 3.0, "test"))

	// Assert: no new atoms, no new events, no cascade into t-double
	assert.Len(t, h.bus.History(), eventsAfterFirst)

	fieldPath, err := valueobjects.ParseFieldPath("B.z")
	require.NoError(t, err)
	field, err := h.catalog.ResolveField(fieldPath)
	require.NoError(t, err)
	ref, err := h.store.GetSingleReference(ctx, field.ReferenceID())
	require.NoError(t, err)
	history, err := h.store.History(ctx, ref.CurrentAtom())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestEngine_CyclicGraphTerminates(t *testing.T) {
	// Arrange: A.x feeds A.y and A.y feeds A.x
	h := newEngineHarness(t)
	ctx := context.Background()
	trigger := h.setField(t, ctx, "A.x", 1.0)
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-forward", Logic: "A.x + 1", Output: "A.y",
	}))
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-back", Logic: "A.y + 1", Output: "A.x",
	}))

	// Act: completes because the revisit of t-forward is rejected
	h.engine.OnFieldValueSet(ctx, events.NewFieldValueSet(trigger, 1.0, "test"))

	// Assert: each transform ran exactly once
	assert.Equal(t, 2.0, h.readField(t, ctx, "A.y"))
	assert.Equal(t, 3.0, h.readField(t, ctx, "A.x"))
}

// slowKV adds read latency so executions overlap reliably instead of
// finishing before the concurrent one starts.
type slowKV struct {
	ports.KVStore
	delay time.Duration
}

func (s slowKV) Get(ctx context.Context, key string) ([]byte, error) {
	time.Sleep(s.delay)
	return s.KVStore.Get(ctx, key)
}

func TestEngine_ConcurrentExecuteOnCyclicPairCompletes(t *testing.T) {
	// Arrange: a mutually dependent pair over a store with read latency,
	// so two manual executions hold their locks at the same time
	h := harnessOn(t, slowKV{KVStore: memory.NewKVStore(), delay: 2 * time.Millisecond})
	ctx := context.Background()
	h.setField(t, ctx, "A.x", 1.0)
	h.setField(t, ctx, "A.y", 1.0)
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-forward", Logic: "A.x + 1", Output: "A.y",
	}))
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-back", Logic: "A.y + 1", Output: "A.x",
	}))

	// Act: repeated concurrent executions from both ends of the cycle
	done := make(chan struct{})
	go func() {
		defer close(done)
		for round := 0; round < 50; round++ {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = h.engine.Execute(ctx, "t-forward")
			}()
			go func() {
				defer wg.Done()
				_ = h.engine.Execute(ctx, "t-back")
			}()
			wg.Wait()
		}
	}()

	// Assert: every round finishes. Holding a transform's execution lock
	// across the cascade would let the two goroutines acquire the pair in
	// opposite orders and block here forever.
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("concurrent executions of mutually dependent transforms never completed")
	}

	for _, id := range []valueobjects.TransformID{"t-forward", "t-back"} {
		state, err := h.engine.State(id)
		require.NoError(t, err)
		assert.Equal(t, entities.TransformStateSucceeded, state)
	}
}

func TestEngine_MaxCascadeDepthDropsRemainder(t *testing.T) {
	// Arrange: a two-stage chain with the cascade bounded to one transform
	h := newEngineHarness(t)
	ctx := context.Background()
	h.setField(t, ctx, "A.x", 2.0)
	trigger := h.setField(t, ctx, "A.y", 3.0)
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-sum", Logic: "A.x + A.y", Output: "B.z",
	}))
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-double", Logic: "B.z * 2", Output: "C.w",
	}))
	h.engine.SetMaxCascadeDepth(1)

	// Act
	h.engine.OnFieldValueSet(ctx, events.NewFieldValueSet(trigger, 3.0, "test"))

	// Assert: the first stage ran, the second was dropped
	assert.Equal(t, 5.0, h.readField(t, ctx, "B.z"))
	outputPath, err := valueobjects.ParseFieldPath("C.w")
	require.NoError(t, err)
	_, err = h.catalog.ReadField(ctx, outputPath)
	assert.True(t, pkgerrors.IsNotFound(err))

	// Lifting the bound lets the full chain run on the next write
	h.engine.SetMaxCascadeDepth(0)
	trigger = h.setField(t, ctx, "A.y", 5.0)
	h.engine.OnFieldValueSet(ctx, events.NewFieldValueSet(trigger, 5.0, "test"))
	assert.Equal(t, 7.0, h.readField(t, ctx, "B.z"))
	assert.Equal(t, 14.0, h.readField(t, ctx, "C.w"))
}

func TestEngine_MissingInputPolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("fail aborts the execution", func(t *testing.T) {
		h := newEngineHarness(t)
		require.NoError(t, h.engine.Register(ctx, RegisterRequest{
			ID:             "t-strict",
			Logic:          "A.absent + 1",
			DeclaredInputs: []string{"A.absent"},
			Output:         "B.z",
			MissingInput:   entities.FailOnMissingInput(),
		}))

		err := h.engine.Execute(ctx, "t-strict")

		require.Error(t, err)
		state, stateErr := h.engine.State("t-strict")
		require.NoError(t, stateErr)
		assert.Equal(t, entities.TransformStateFailed, state)
		assert.Equal(t, 1, h.queue.Status().Failed)
	})

	t.Run("use_null substitutes null", func(t *testing.T) {
		h := newEngineHarness(t)
		require.NoError(t, h.engine.Register(ctx, RegisterRequest{
			ID:             "t-lenient",
			Logic:          "coalesce(A.absent, 42)",
			DeclaredInputs: []string{"A.absent"},
			Output:         "B.z",
			MissingInput:   entities.NullOnMissingInput(),
		}))

		require.NoError(t, h.engine.Execute(ctx, "t-lenient"))

		assert.Equal(t, 42.0, h.readField(t, ctx, "B.z"))
	})

	t.Run("use_default substitutes the configured value", func(t *testing.T) {
		h := newEngineHarness(t)
		require.NoError(t, h.engine.Register(ctx, RegisterRequest{
			ID:             "t-defaulted",
			Logic:          "A.absent + 1",
			DeclaredInputs: []string{"A.absent"},
			Output:         "B.z",
			MissingInput:   entities.DefaultOnMissingInput(7.0),
		}))

		require.NoError(t, h.engine.Execute(ctx, "t-defaulted"))

		assert.Equal(t, 8.0, h.readField(t, ctx, "B.z"))
	})
}

func TestEngine_FailureStaysIsolatedFromSiblings(t *testing.T) {
	// Arrange: two transforms on the same trigger field, one of which
	// divides by the field's value of zero
	h := newEngineHarness(t)
	ctx := context.Background()
	trigger := h.setField(t, ctx, "A.zero", 0.0)
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-divides", Logic: "1 / A.zero", Output: "B.bad",
	}))
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-fine", Logic: "A.zero + 1", Output: "B.good",
	}))

	// Act
	h.engine.OnFieldValueSet(ctx, events.NewFieldValueSet(trigger, 0.0, "test"))

	// Assert
	failed, err := h.engine.State("t-divides")
	require.NoError(t, err)
	assert.Equal(t, entities.TransformStateFailed, failed)

	succeeded, err := h.engine.State("t-fine")
	require.NoError(t, err)
	assert.Equal(t, entities.TransformStateSucceeded, succeeded)
	assert.Equal(t, 1.0, h.readField(t, ctx, "B.good"))

	status := h.queue.Status()
	assert.Equal(t, 1, status.Failed)
	assert.Equal(t, 1, status.Completed)
}

func TestEngine_ReloadRestoresPersistedTransforms(t *testing.T) {
	// Arrange: register against one engine, then start a fresh one over
	// the same KV store
	ctx := context.Background()
	kv := memory.NewKVStore()
	first := harnessOn(t, kv)
	require.NoError(t, first.engine.Register(ctx, RegisterRequest{
		ID: "t-sum", Logic: "A.x + A.y", Output: "B.z",
	}))

	restarted := harnessOn(t, kv)
	before, err := restarted.engine.GetTransformsForField("A", "x")
	require.NoError(t, err)
	require.Empty(t, before)

	// Act
	require.NoError(t, restarted.engine.ReloadTransforms(ctx))

	// Assert: the definition and its index entries are back, and it runs
	after, err := restarted.engine.GetTransformsForField("A", "x")
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.TransformID{"t-sum"}, after)

	restarted.setField(t, ctx, "A.x", 2.0)
	restarted.setField(t, ctx, "A.y", 3.0)
	require.NoError(t, restarted.engine.Execute(ctx, "t-sum"))
	assert.Equal(t, 5.0, restarted.readField(t, ctx, "B.z"))
}

func TestEngine_Unregister(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-sum", Logic: "A.x + A.y", Output: "B.z",
	}))

	require.NoError(t, h.engine.Unregister(ctx, "t-sum"))

	forX, err := h.engine.GetTransformsForField("A", "x")
	require.NoError(t, err)
	assert.Empty(t, forX)
	_, err = h.engine.State("t-sum")
	assert.True(t, pkgerrors.IsNotFound(err))
	assert.True(t, pkgerrors.IsNotFound(h.engine.Unregister(ctx, "t-sum")))

	// A reload after unregister must not resurrect the definition
	require.NoError(t, h.engine.ReloadTransforms(ctx))
	_, err = h.engine.State("t-sum")
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestEngine_StartTriggersOnPublishedWrites(t *testing.T) {
	// Arrange
	h := newEngineHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.setField(t, ctx, "A.x", 2.0)
	trigger := h.setField(t, ctx, "A.y", 3.0)
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-sum", Logic: "A.x + A.y", Output: "B.z",
	}))

	h.engine.Start(ctx)
	defer h.engine.Stop()

	// Act
	require.NoError(t, h.bus.Publish(events.NewFieldValueSet(trigger, 3.0, "test")))

	// Assert
	outputPath, err := valueobjects.ParseFieldPath("B.z")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		value, readErr := h.catalog.ReadField(ctx, outputPath)
		return readErr == nil && value == 5.0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEngine_HealthCheckReportsCleanIndex(t *testing.T) {
	h := newEngineHarness(t)
	ctx := context.Background()
	require.NoError(t, h.engine.Register(ctx, RegisterRequest{
		ID: "t-sum", Logic: "A.x + A.y", Output: "B.z",
	}))

	assert.Empty(t, h.engine.HealthCheck())
}
