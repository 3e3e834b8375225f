package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fluxstore/application/services/execqueue"
	"fluxstore/application/services/registry"
	"fluxstore/infrastructure/messaging/membus"
	"fluxstore/interfaces/http/rest/handlers"
	"fluxstore/interfaces/http/rest/middleware"
	"fluxstore/pkg/observability"
)

// Router creates and configures the status HTTP surface
type Router struct {
	engine  *registry.Engine
	queue   *execqueue.Queue
	bus     *membus.Bus
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	engine *registry.Engine,
	queue *execqueue.Queue,
	bus *membus.Bus,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Router {
	return &Router{
		engine:  engine,
		queue:   queue,
		bus:     bus,
		metrics: metrics,
		logger:  logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(rt.logger))

	statusHandler := handlers.NewStatusHandler(rt.engine, rt.queue, rt.bus, rt.logger)
	router.Get("/healthz", statusHandler.GetHealth)
	router.Get("/queue", statusHandler.GetQueue)
	router.Get("/deadletters", statusHandler.GetDeadLetters)
	router.Get("/transforms/{transformID}", statusHandler.GetTransformState)
	router.Get("/fields/{schema}/{field}/transforms", statusHandler.GetTransformsForField)

	if rt.metrics != nil {
		router.Get("/metrics", promhttp.HandlerFor(
			rt.metrics.Registry(),
			promhttp.HandlerOpts{},
		).ServeHTTP)
	}

	return router
}
