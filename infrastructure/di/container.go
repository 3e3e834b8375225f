//go:build !wireinject
// +build !wireinject

package di

import (
	"context"

	"fluxstore/infrastructure/config"
)

// InitializeContainer creates a fully wired container. This mirrors what
// wire generates from SuperSet; kept by hand so the build does not depend
// on code generation.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	metrics := ProvideMetrics(cfg)

	kv, err := ProvideKVStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	bus := ProvideBus(cfg, logger, metrics)
	store := ProvideStore(kv, logger, metrics)
	catalog := ProvideCatalog(store)
	resolver := ProvideResolver(catalog, bus, logger)

	queue, err := ProvideQueue(ctx, kv, logger, metrics)
	if err != nil {
		kv.Close()
		return nil, err
	}

	index := ProvideIndex()
	engine := ProvideEngine(index, catalog, store, bus, queue, kv, logger, metrics)
	handler := ProvideHandler(engine, queue, bus, metrics, logger)

	return &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  metrics,
		KV:       kv,
		Bus:      bus,
		Store:    store,
		Catalog:  catalog,
		Resolver: resolver,
		Queue:    queue,
		Index:    index,
		Engine:   engine,
		Handler:  handler,
	}, nil
}
