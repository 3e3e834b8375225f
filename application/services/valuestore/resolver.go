package valuestore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"fluxstore/domain/events"
	"fluxstore/infrastructure/messaging/membus"
)

// Resolver serves field reads over the bus: it answers each
// FieldValueRequested with a FieldValueResolved carrying the caller's
// correlation ID. Collaborators that only hold a bus handle read the store
// through it.
type Resolver struct {
	catalog *Catalog
	bus     *membus.Bus
	logger  *zap.Logger

	wg       sync.WaitGroup
	consumer *membus.Consumer[events.FieldValueRequested]
}

// NewResolver wires a resolver over the given catalog and bus
func NewResolver(catalog *Catalog, bus *membus.Bus, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{catalog: catalog, bus: bus, logger: logger}
}

// Start subscribes the resolver and answers requests until the context is
// cancelled.
func (r *Resolver) Start(ctx context.Context) {
	r.consumer = membus.Subscribe[events.FieldValueRequested](r.bus)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			request, err := r.consumer.Receive(ctx)
			if err != nil {
				return
			}
			r.Answer(ctx, request)
		}
	}()
}

// Stop closes the subscription and waits for the loop to drain
func (r *Resolver) Stop() {
	if r.consumer != nil {
		r.consumer.Close()
	}
	r.wg.Wait()
}

// Answer resolves one request and publishes the response. A failed read
// becomes a response with the error message set, not a dropped request.
func (r *Resolver) Answer(ctx context.Context, request events.FieldValueRequested) {
	value, err := r.catalog.ReadField(ctx, request.Field)
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		r.logger.Debug("field read request failed",
			zap.String("correlationID", request.CorrelationID),
			zap.String("field", request.Field.String()),
			zap.Error(err),
		)
	}

	response := events.NewFieldValueResolved(request.CorrelationID, request.Field, value, errMsg)
	if err := r.bus.Publish(response); err != nil {
		r.logger.Warn("field read response undelivered",
			zap.String("correlationID", request.CorrelationID),
			zap.Error(err),
		)
	}
}
