package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fluxstore/application/services/execqueue"
	"fluxstore/application/services/registry"
	"fluxstore/domain/core/valueobjects"
	"fluxstore/infrastructure/messaging/membus"
	"fluxstore/pkg/api"
)

// StatusHandler exposes the engine's observability surface: index health,
// execution queue state and undeliverable events.
type StatusHandler struct {
	engine *registry.Engine
	queue  *execqueue.Queue
	bus    *membus.Bus
	logger *zap.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(engine *registry.Engine, queue *execqueue.Queue, bus *membus.Bus, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		engine: engine,
		queue:  queue,
		bus:    bus,
		logger: logger,
	}
}

type healthResponse struct {
	Status string   `json:"status"`
	Issues []string `json:"issues,omitempty"`
}

// GetHealth handles GET /healthz. The dependency index consistency check
// reports one-sided entries; any finding degrades the health status but is
// never repaired here.
func (h *StatusHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	issues := h.engine.HealthCheck()
	if len(issues) > 0 {
		h.logger.Warn("dependency index inconsistent", zap.Strings("issues", issues))
		api.Success(w, http.StatusServiceUnavailable, healthResponse{Status: "degraded", Issues: issues})
		return
	}
	api.Success(w, http.StatusOK, healthResponse{Status: "healthy"})
}

type queueEntryResponse struct {
	TransformID string    `json:"transform_id"`
	State       string    `json:"state"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	LastError   string    `json:"last_error,omitempty"`
}

type queueResponse struct {
	Pending   int                  `json:"pending"`
	Running   int                  `json:"running"`
	Completed int                  `json:"completed"`
	Failed    int                  `json:"failed"`
	Entries   []queueEntryResponse `json:"entries"`
}

// GetQueue handles GET /queue
func (h *StatusHandler) GetQueue(w http.ResponseWriter, r *http.Request) {
	status := h.queue.Status()
	entries := h.queue.Entries()

	resp := queueResponse{
		Pending:   status.Pending,
		Running:   status.Running,
		Completed: status.Completed,
		Failed:    status.Failed,
		Entries:   make([]queueEntryResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, queueEntryResponse{
			TransformID: entry.TransformID.String(),
			State:       string(entry.State),
			EnqueuedAt:  entry.EnqueuedAt,
			UpdatedAt:   entry.UpdatedAt,
			LastError:   entry.LastError,
		})
	}
	api.Success(w, http.StatusOK, resp)
}

type transformStateResponse struct {
	TransformID string `json:"transform_id"`
	State       string `json:"state"`
}

// GetTransformState handles GET /transforms/{transformID}
func (h *StatusHandler) GetTransformState(w http.ResponseWriter, r *http.Request) {
	transformID := valueobjects.TransformID(chi.URLParam(r, "transformID"))

	state, err := h.engine.State(transformID)
	if err != nil {
		api.FromError(w, err)
		return
	}
	api.Success(w, http.StatusOK, transformStateResponse{
		TransformID: transformID.String(),
		State:       string(state),
	})
}

type fieldTransformsResponse struct {
	Field      string   `json:"field"`
	Transforms []string `json:"transforms"`
}

// GetTransformsForField handles GET /fields/{schema}/{field}/transforms
func (h *StatusHandler) GetTransformsForField(w http.ResponseWriter, r *http.Request) {
	schema := chi.URLParam(r, "schema")
	field := chi.URLParam(r, "field")

	ids, err := h.engine.GetTransformsForField(schema, field)
	if err != nil {
		api.FromError(w, err)
		return
	}

	resp := fieldTransformsResponse{
		Field:      schema + "." + field,
		Transforms: make([]string, 0, len(ids)),
	}
	for _, id := range ids {
		resp.Transforms = append(resp.Transforms, id.String())
	}
	api.Success(w, http.StatusOK, resp)
}

type deadLetterResponse struct {
	EventType string    `json:"event_type"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error"`
	FailedAt  time.Time `json:"failed_at"`
}

// GetDeadLetters handles GET /deadletters
func (h *StatusHandler) GetDeadLetters(w http.ResponseWriter, r *http.Request) {
	letters := h.bus.DeadLetters()

	resp := make([]deadLetterResponse, 0, len(letters))
	for _, letter := range letters {
		resp = append(resp, deadLetterResponse{
			EventType: letter.Event.GetEventType(),
			Attempts:  letter.Attempts,
			LastError: letter.LastError,
			FailedAt:  letter.FailedAt,
		})
	}
	api.Success(w, http.StatusOK, resp)
}
