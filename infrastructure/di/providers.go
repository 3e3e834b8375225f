package di

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fluxstore/application/ports"
	"fluxstore/application/services/execqueue"
	"fluxstore/application/services/registry"
	"fluxstore/application/services/valuestore"
	"fluxstore/infrastructure/config"
	"fluxstore/infrastructure/messaging/membus"
	"fluxstore/infrastructure/persistence/badgerkv"
	"fluxstore/infrastructure/persistence/breaker"
	"fluxstore/interfaces/http/rest"
	"fluxstore/pkg/observability"
)

// ProvideLogger creates the application logger from config
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.IsProduction() {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

// ProvideMetrics creates the prometheus collector. Disabled metrics yield
// nil; every consumer tolerates a nil collector.
func ProvideMetrics(cfg *config.Config) *observability.Collector {
	if !cfg.EnableMetrics {
		return nil
	}
	return observability.NewCollector("fluxstore")
}

// ProvideKVStore opens the badger store, wrapped in a circuit breaker
// unless the config disables it.
func ProvideKVStore(cfg *config.Config, logger *zap.Logger) (ports.KVStore, error) {
	var kv ports.KVStore
	var err error
	if cfg.Storage.InMemory {
		kv, err = badgerkv.OpenInMemory(logger)
	} else {
		kv, err = badgerkv.Open(badgerkv.Config{
			Path:       cfg.Storage.Path,
			SyncWrites: cfg.Storage.SyncWrites,
		}, logger)
	}
	if err != nil {
		return nil, err
	}

	if cfg.EnableBreaker {
		kv = breaker.Wrap(kv, breaker.DefaultConfig("kvstore"), logger)
	}
	return kv, nil
}

// ProvideBus creates the in-process event bus
func ProvideBus(cfg *config.Config, logger *zap.Logger, metrics *observability.Collector) *membus.Bus {
	return membus.New(membus.Config{
		BufferSize:   cfg.Bus.BufferSize,
		MaxAttempts:  cfg.Bus.MaxAttempts,
		RetryBackoff: cfg.Bus.RetryBackoff,
		HistorySize:  cfg.Bus.HistorySize,
	}, logger, metrics)
}

// ProvideStore creates the value store
func ProvideStore(kv ports.KVStore, logger *zap.Logger, metrics *observability.Collector) *valuestore.Store {
	return valuestore.NewStore(kv, logger, metrics)
}

// ProvideCatalog creates the schema catalog
func ProvideCatalog(store *valuestore.Store) *valuestore.Catalog {
	return valuestore.NewCatalog(store)
}

// ProvideQueue creates the durable execution queue, recovering persisted
// entries on startup.
func ProvideQueue(ctx context.Context, kv ports.KVStore, logger *zap.Logger, metrics *observability.Collector) (*execqueue.Queue, error) {
	return execqueue.New(ctx, kv, logger, metrics)
}

// ProvideResolver creates the bus-facing field read resolver
func ProvideResolver(catalog *valuestore.Catalog, bus *membus.Bus, logger *zap.Logger) *valuestore.Resolver {
	return valuestore.NewResolver(catalog, bus, logger)
}

// ProvideIndex creates the dependency index
func ProvideIndex() *registry.DependencyIndex {
	return registry.NewDependencyIndex()
}

// ProvideEngine creates the trigger engine
func ProvideEngine(
	index *registry.DependencyIndex,
	catalog *valuestore.Catalog,
	store *valuestore.Store,
	bus *membus.Bus,
	queue *execqueue.Queue,
	kv ports.KVStore,
	logger *zap.Logger,
	metrics *observability.Collector,
) *registry.Engine {
	return registry.NewEngine(index, catalog, store, bus, queue, kv, logger, metrics)
}

// ProvideHandler builds the status HTTP surface
func ProvideHandler(
	engine *registry.Engine,
	queue *execqueue.Queue,
	bus *membus.Bus,
	metrics *observability.Collector,
	logger *zap.Logger,
) http.Handler {
	return rest.NewRouter(engine, queue, bus, metrics, logger).Setup()
}
