package registry

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fluxstore/application/ports"
	"fluxstore/application/services/execqueue"
	"fluxstore/application/services/valuestore"
	"fluxstore/domain/core/entities"
	"fluxstore/domain/core/valueobjects"
	"fluxstore/domain/events"
	"fluxstore/domain/transformlang"
	"fluxstore/infrastructure/messaging/membus"
	pkgerrors "fluxstore/pkg/errors"
	"fluxstore/pkg/observability"
)

// EngineSource marks events the engine itself publishes. The subscription
// loop skips them: cascaded dependents were already run in-process, so
// reprocessing the engine's own FieldValueSet would double-execute them.
const EngineSource = "trigger-engine"

// RegisterRequest is the external registration payload
type RegisterRequest struct {
	ID             string   `validate:"required"`
	Logic          string   `validate:"required"`
	DeclaredInputs []string `validate:"dive,required"`
	Output         string   `validate:"required"`
	MissingInput   entities.MissingInputPolicy
}

// registered is one compiled transform: its definition, parsed logic and
// effective input set.
type registered struct {
	transform *entities.Transform
	expr      transformlang.Expr
	inputs    []valueobjects.FieldPath
}

// Engine owns the dependency index and reacts to field writes: it resolves
// inputs from the value store, evaluates transform logic, writes the result
// back and republishes, cascading into dependent transforms. One engine
// instance serves the whole store.
type Engine struct {
	index       *DependencyIndex
	catalog     *valuestore.Catalog
	store       *valuestore.Store
	bus         *membus.Bus
	queue       *execqueue.Queue
	kv          ports.KVStore
	interpreter *transformlang.Interpreter
	validate    *validator.Validate
	logger      *zap.Logger
	metrics     *observability.Collector

	mu         sync.RWMutex
	transforms map[valueobjects.TransformID]*registered
	states     map[valueobjects.TransformID]entities.TransformState

	// Per-transform execution locks: at most one in-flight execution per
	// transform ID, while distinct transforms run in parallel.
	lockMu sync.Mutex
	locks  map[valueobjects.TransformID]*sync.Mutex

	// maxCascade bounds how many transforms one write may trigger
	// transitively. Zero means unbounded. Hot-reloadable via the tunables
	// watcher.
	maxCascade atomic.Int64

	loopWG   sync.WaitGroup
	consumer *membus.Consumer[events.FieldValueSet]
}

// NewEngine wires the trigger engine. metrics may be nil.
func NewEngine(
	index *DependencyIndex,
	catalog *valuestore.Catalog,
	store *valuestore.Store,
	bus *membus.Bus,
	queue *execqueue.Queue,
	kv ports.KVStore,
	logger *zap.Logger,
	metrics *observability.Collector,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		index:       index,
		catalog:     catalog,
		store:       store,
		bus:         bus,
		queue:       queue,
		kv:          kv,
		interpreter: transformlang.NewInterpreter(),
		validate:    validator.New(),
		logger:      logger,
		metrics:     metrics,
		transforms:  make(map[valueobjects.TransformID]*registered),
		states:      make(map[valueobjects.TransformID]entities.TransformState),
		locks:       make(map[valueobjects.TransformID]*sync.Mutex),
	}
}

// Register validates, compiles and indexes a transform. Registering an ID
// that already exists replaces its definition and index entries atomically.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) error {
	if err := e.validate.Struct(req); err != nil {
		return pkgerrors.NewValidation("invalid registration: " + err.Error())
	}

	output, err := valueobjects.ParseFieldPath(req.Output)
	if err != nil {
		return err
	}
	declared := make([]valueobjects.FieldPath, 0, len(req.DeclaredInputs))
	for _, raw := range req.DeclaredInputs {
		path, err := valueobjects.ParseFieldPath(raw)
		if err != nil {
			return err
		}
		declared = append(declared, path)
	}

	transform, err := entities.NewTransform(valueobjects.TransformID(req.ID), req.Logic, declared, output, req.MissingInput)
	if err != nil {
		return err
	}
	return e.register(ctx, transform, true)
}

func (e *Engine) register(ctx context.Context, transform *entities.Transform, persist bool) error {
	expr, err := transformlang.Parse(transform.Logic())
	if err != nil {
		return pkgerrors.Wrap(err, "transform "+transform.ID().String()+" has invalid logic")
	}

	// Effective inputs: the declaration wins; an empty declaration falls
	// back to static analysis of the logic.
	inputs := transform.DeclaredInputs()
	if len(inputs) == 0 {
		for _, raw := range transformlang.ExtractInputPaths(expr) {
			path, err := valueobjects.ParseFieldPath(raw)
			if err != nil {
				return pkgerrors.Wrap(err, "inferred input of transform "+transform.ID().String())
			}
			inputs = append(inputs, path)
		}
	}

	// Reference entries only exist for inputs whose field is already
	// declared; late-declared fields are picked up on re-registration or
	// reload.
	var refs []valueobjects.ReferenceID
	for _, input := range inputs {
		if field, err := e.catalog.ResolveField(input); err == nil {
			refs = append(refs, field.ReferenceID())
		}
	}

	if persist {
		data, err := encodeTransform(transform)
		if err != nil {
			return pkgerrors.NewInternal("encode transform", err)
		}
		if err := e.kv.Put(ctx, transformKeyPrefix+transform.ID().String(), data); err != nil {
			return pkgerrors.Wrap(err, "persist transform")
		}
	}

	e.mu.Lock()
	e.transforms[transform.ID()] = &registered{transform: transform, expr: expr, inputs: inputs}
	e.states[transform.ID()] = entities.TransformStateRegistered
	e.mu.Unlock()

	e.index.Replace(transform.ID(), inputs, refs)

	e.logger.Info("transform registered",
		zap.String("transformID", transform.ID().String()),
		zap.String("output", transform.Output().String()),
		zap.Int("inputs", len(inputs)),
	)
	return nil
}

// Unregister removes a transform and its index entries
func (e *Engine) Unregister(ctx context.Context, transformID valueobjects.TransformID) error {
	e.mu.Lock()
	_, exists := e.transforms[transformID]
	delete(e.transforms, transformID)
	delete(e.states, transformID)
	e.mu.Unlock()

	if !exists {
		return pkgerrors.NewNotFound("transform not registered: " + transformID.String())
	}
	e.index.Remove(transformID)
	return pkgerrors.Wrap(e.kv.Delete(ctx, transformKeyPrefix+transformID.String()), "delete transform record")
}

// GetTransformsForField returns the transforms consuming a field
func (e *Engine) GetTransformsForField(schema, field string) ([]valueobjects.TransformID, error) {
	path, err := valueobjects.NewFieldPath(schema, field)
	if err != nil {
		return nil, err
	}
	return e.index.TransformsForField(path), nil
}

// State reports a transform's execution lifecycle state
func (e *Engine) State(transformID valueobjects.TransformID) (entities.TransformState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, ok := e.states[transformID]
	if !ok {
		return "", pkgerrors.NewNotFound("transform not registered: " + transformID.String())
	}
	return state, nil
}

// HealthCheck reports dependency index inconsistencies without repairing
func (e *Engine) HealthCheck() []string {
	return e.index.CheckConsistency()
}

// ReloadTransforms re-derives the dependency index from persisted
// transform definitions. Used after schema approval or blocking
// transitions change which fields are live.
func (e *Engine) ReloadTransforms(ctx context.Context) error {
	persisted, err := e.kv.ListPrefix(ctx, transformKeyPrefix)
	if err != nil {
		return pkgerrors.Wrap(err, "list persisted transforms")
	}

	// Decode in parallel, re-index sequentially: the index swap itself
	// stays a per-transform critical section.
	decoded := make([]*entities.Transform, len(persisted))
	var group errgroup.Group
	for i, entry := range persisted {
		i, entry := i, entry
		group.Go(func() error {
			transform, err := decodeTransform(entry.Value)
			if err != nil {
				return pkgerrors.Wrap(err, "decode transform at "+entry.Key)
			}
			decoded[i] = transform
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for _, transform := range decoded {
		if err := e.register(ctx, transform, false); err != nil {
			return err
		}
	}

	e.logger.Info("transforms reloaded", zap.Int("count", len(decoded)))
	return nil
}

// Start subscribes the engine to field writes and runs the trigger loop
// until the context is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.consumer = membus.Subscribe[events.FieldValueSet](e.bus)

	e.loopWG.Add(1)
	go func() {
		defer e.loopWG.Done()
		for {
			event, err := e.consumer.Receive(ctx)
			if err != nil {
				return
			}
			if event.Source == EngineSource {
				continue
			}
			e.OnFieldValueSet(ctx, event)
		}
	}()
}

// Stop closes the subscription and waits for the loop to drain
func (e *Engine) Stop() {
	if e.consumer != nil {
		e.consumer.Close()
	}
	e.loopWG.Wait()
}

// OnFieldValueSet triggers every transform that consumes the written
// field. Each cascade carries a visited set, so a cyclic transform graph
// degrades into a rejected re-entrant execution instead of a loop.
func (e *Engine) OnFieldValueSet(ctx context.Context, event events.FieldValueSet) {
	visited := make(map[valueobjects.TransformID]bool)
	for _, transformID := range e.index.TransformsForField(event.Field) {
		if err := e.execute(ctx, transformID, visited); err != nil {
			// A single transform's failure stays isolated from its
			// siblings.
			e.logger.Error("transform execution failed",
				zap.String("transformID", transformID.String()),
				zap.String("trigger", event.Field.String()),
				zap.Error(err),
			)
		}
	}
}

// Execute runs one transform outside any cascade, for callers that want a
// manual trigger.
func (e *Engine) Execute(ctx context.Context, transformID valueobjects.TransformID) error {
	return e.execute(ctx, transformID, make(map[valueobjects.TransformID]bool))
}

// SetMaxCascadeDepth bounds how many transforms one write may trigger
// transitively; the remainder of a cascade past the bound is dropped.
// Non-positive means unbounded.
func (e *Engine) SetMaxCascadeDepth(depth int) {
	e.maxCascade.Store(int64(depth))
}

func (e *Engine) execute(ctx context.Context, transformID valueobjects.TransformID, visited map[valueobjects.TransformID]bool) error {
	if visited[transformID] {
		if e.metrics != nil {
			e.metrics.CascadeRejections.Inc()
		}
		e.logger.Warn("rejected re-entrant execution within cascade",
			zap.String("transformID", transformID.String()),
		)
		return nil
	}
	if limit := e.maxCascade.Load(); limit > 0 && int64(len(visited)) >= limit {
		if e.metrics != nil {
			e.metrics.CascadeRejections.Inc()
		}
		e.logger.Warn("cascade depth limit reached, dropping remainder",
			zap.String("transformID", transformID.String()),
			zap.Int64("limit", limit),
		)
		return nil
	}
	visited[transformID] = true

	e.mu.RLock()
	reg, ok := e.transforms[transformID]
	e.mu.RUnlock()
	if !ok {
		return pkgerrors.NewNotFound("transform not registered: " + transformID.String())
	}

	content, changed, err := e.runOne(ctx, transformID, reg)
	if err != nil {
		return err
	}
	if !changed {
		// The recomputed value matches what the output already holds:
		// no new atom, no events, no cascade.
		return nil
	}

	if err := e.bus.PublishWithRetry(events.NewTransformExecuted(transformID, content)); err != nil {
		e.logger.Warn("transform executed but completion event undelivered",
			zap.String("transformID", transformID.String()),
			zap.Error(err),
		)
	}
	output := reg.transform.Output()
	if err := e.bus.PublishWithRetry(events.NewFieldValueSet(output, content, EngineSource)); err != nil {
		e.logger.Warn("output field event undelivered",
			zap.String("field", output.String()),
			zap.Error(err),
		)
	}

	// Cascade synchronously within the same visited set. The published
	// FieldValueSet above serves external observers; the loop skips it.
	for _, dependent := range e.index.TransformsForField(output) {
		if err := e.execute(ctx, dependent, visited); err != nil {
			e.logger.Error("cascaded transform execution failed",
				zap.String("transformID", dependent.String()),
				zap.String("trigger", output.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// runOne evaluates one transform and writes its output while holding that
// transform's execution lock. The lock covers only this single execution,
// never the cascade into dependents: holding it across the recursion would
// let two concurrent executions of mutually dependent transforms acquire
// their locks in opposite orders and block each other for good.
func (e *Engine) runOne(ctx context.Context, transformID valueobjects.TransformID, reg *registered) (interface{}, bool, error) {
	lock := e.lockFor(transformID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	e.setState(transformID, entities.TransformStateExecuting)
	e.trackQueue(ctx, transformID)

	result, err := e.evaluate(ctx, reg)
	if err != nil {
		e.setState(transformID, entities.TransformStateFailed)
		e.observeOutcome(ctx, transformID, "failed", start, err)
		return nil, false, err
	}

	changed, err := e.writeOutput(ctx, reg, result)
	if err != nil {
		e.setState(transformID, entities.TransformStateFailed)
		e.observeOutcome(ctx, transformID, "failed", start, err)
		return nil, false, err
	}

	e.setState(transformID, entities.TransformStateSucceeded)
	e.observeOutcome(ctx, transformID, "succeeded", start, nil)
	return transformlang.ToInterface(result), changed, nil
}

// evaluate resolves the transform's inputs and runs its logic. Every
// input binds under both its full "Schema.field" key and its bare field
// name, matching the interpreter's lookup fallback.
func (e *Engine) evaluate(ctx context.Context, reg *registered) (transformlang.Value, error) {
	env := transformlang.NewEnvironment()

	for _, input := range reg.inputs {
		raw, err := e.catalog.ReadField(ctx, input)
		var value transformlang.Value
		if err != nil {
			value, err = e.substitute(reg.transform, input, err)
			if err != nil {
				return transformlang.Null(), err
			}
		} else {
			value, err = transformlang.FromInterface(raw)
			if err != nil {
				return transformlang.Null(), pkgerrors.Wrap(err, "input "+input.String())
			}
		}
		env.Bind(input.String(), value)
		env.Bind(input.Field(), value)
	}

	return e.interpreter.Evaluate(reg.expr, env)
}

// substitute applies the transform's missing-input policy to a resolution
// failure.
func (e *Engine) substitute(transform *entities.Transform, input valueobjects.FieldPath, cause error) (transformlang.Value, error) {
	policy := transform.MissingInput()
	switch policy.Kind {
	case entities.MissingInputFail:
		return transformlang.Null(), pkgerrors.Wrap(cause, "unresolvable input "+input.String())
	case entities.MissingInputUseDefault:
		value, err := transformlang.FromInterface(policy.Default)
		if err != nil {
			return transformlang.Null(), pkgerrors.Wrap(err, "default for input "+input.String())
		}
		e.logger.Debug("substituted default for missing input",
			zap.String("transformID", transform.ID().String()),
			zap.String("input", input.String()),
		)
		return value, nil
	default:
		e.logger.Debug("substituted null for missing input",
			zap.String("transformID", transform.ID().String()),
			zap.String("input", input.String()),
		)
		return transformlang.Null(), nil
	}
}

// writeOutput persists the result as a new atom and repoints the output
// reference. Returns false when the recomputed value equals the output's
// current value, in which case nothing is written.
func (e *Engine) writeOutput(ctx context.Context, reg *registered, result transformlang.Value) (bool, error) {
	output := reg.transform.Output()
	content := transformlang.ToInterface(result)

	field, err := e.catalog.EnsureSingleField(ctx, output)
	if err != nil {
		return false, pkgerrors.Wrap(err, "resolve output field "+output.String())
	}

	ref, err := e.store.GetSingleReference(ctx, field.ReferenceID())
	if err != nil {
		return false, pkgerrors.Wrap(err, "load output reference")
	}

	var previous valueobjects.AtomID
	if !ref.IsEmpty() {
		previous = ref.CurrentAtom()
		if current, err := e.store.GetAtom(ctx, previous); err == nil {
			if reflect.DeepEqual(current.Content(), content) {
				return false, nil
			}
		}
	}

	atom, err := e.store.CreateAtom(ctx, output.Schema(), EngineSource, previous, content, entities.AtomStatusActive)
	if err != nil {
		return false, pkgerrors.Wrap(err, "write output atom")
	}
	if _, err := e.store.UpdateSingleReference(ctx, field.ReferenceID(), atom.ID(), EngineSource); err != nil {
		return false, pkgerrors.Wrap(err, "repoint output reference")
	}
	return true, nil
}

func (e *Engine) lockFor(transformID valueobjects.TransformID) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()

	lock, ok := e.locks[transformID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[transformID] = lock
	}
	return lock
}

func (e *Engine) setState(transformID valueobjects.TransformID, state entities.TransformState) {
	e.mu.Lock()
	e.states[transformID] = state
	e.mu.Unlock()
}

// trackQueue records the execution in the durable queue. The queue is
// observability bookkeeping; a queue write failure must not block the
// execution itself.
func (e *Engine) trackQueue(ctx context.Context, transformID valueobjects.TransformID) {
	if e.queue == nil {
		return
	}
	if err := e.queue.Enqueue(ctx, transformID); err != nil {
		e.logger.Warn("queue enqueue failed", zap.String("transformID", transformID.String()), zap.Error(err))
		return
	}
	if err := e.queue.MarkRunning(ctx, transformID); err != nil {
		e.logger.Warn("queue state update failed", zap.String("transformID", transformID.String()), zap.Error(err))
	}
}

func (e *Engine) observeOutcome(ctx context.Context, transformID valueobjects.TransformID, status string, start time.Time, cause error) {
	if e.metrics != nil {
		e.metrics.ObserveTransform(status, time.Since(start))
	}
	if e.queue == nil {
		return
	}
	var err error
	if status == "succeeded" {
		err = e.queue.MarkCompleted(ctx, transformID)
	} else {
		msg := ""
		if cause != nil {
			msg = cause.Error()
		}
		err = e.queue.MarkFailed(ctx, transformID, msg)
	}
	if err != nil {
		e.logger.Warn("queue state update failed", zap.String("transformID", transformID.String()), zap.Error(err))
	}
}
