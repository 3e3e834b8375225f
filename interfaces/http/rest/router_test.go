package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fluxstore/application/services/execqueue"
	"fluxstore/application/services/registry"
	"fluxstore/application/services/valuestore"
	"fluxstore/infrastructure/messaging/membus"
	"fluxstore/infrastructure/persistence/memory"
)

// newTestHandler wires the status surface over an in-memory stack with one
// transform already registered.
func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	logger := zap.NewNop()
	kv := memory.NewKVStore()
	bus := membus.New(membus.DefaultConfig(), logger, nil)
	store := valuestore.NewStore(kv, logger, nil)
	catalog := valuestore.NewCatalog(store)
	queue, err := execqueue.New(context.Background(), kv, logger, nil)
	require.NoError(t, err)
	engine := registry.NewEngine(registry.NewDependencyIndex(), catalog, store, bus, queue, kv, logger, nil)
	require.NoError(t, engine.Register(context.Background(), registry.RegisterRequest{
		ID:     "t-sum",
		Logic:  "A.x + A.y",
		Output: "B.z",
	}))
	return NewRouter(engine, queue, bus, nil, logger).Setup()
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
	return recorder
}

func TestRouter_GetTransformStateReportsLifecycle(t *testing.T) {
	// Arrange
	handler := newTestHandler(t)

	// Act
	recorder := get(t, handler, "/transforms/t-sum")

	// Assert
	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		TransformID string `json:"transform_id"`
		State       string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "t-sum", body.TransformID)
	assert.Equal(t, "registered", body.State)
}

func TestRouter_GetTransformStateUnknownIs404(t *testing.T) {
	// Arrange
	handler := newTestHandler(t)

	// Act
	recorder := get(t, handler, "/transforms/t-missing")

	// Assert
	require.Equal(t, http.StatusNotFound, recorder.Code)
	var body struct {
		Code  string `json:"code"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Code)
}

func TestRouter_GetTransformsForFieldListsConsumers(t *testing.T) {
	// Arrange
	handler := newTestHandler(t)

	// Act
	recorder := get(t, handler, "/fields/A/x/transforms")

	// Assert
	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		Field      string   `json:"field"`
		Transforms []string `json:"transforms"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "A.x", body.Field)
	assert.Equal(t, []string{"t-sum"}, body.Transforms)
}

func TestRouter_GetTransformsForFieldRejectsMalformedField(t *testing.T) {
	// Arrange
	handler := newTestHandler(t)

	// Act: a field segment containing a dot is not a valid field name
	recorder := get(t, handler, "/fields/A/x.y/transforms")

	// Assert
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION", body.Code)
}

func TestRouter_HealthzIsHealthyOnCleanIndex(t *testing.T) {
	// Arrange
	handler := newTestHandler(t)

	// Act
	recorder := get(t, handler, "/healthz")

	// Assert
	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
}
