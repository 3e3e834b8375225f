package di

import (
	"net/http"

	"go.uber.org/zap"

	"fluxstore/application/ports"
	"fluxstore/application/services/execqueue"
	"fluxstore/application/services/registry"
	"fluxstore/application/services/valuestore"
	"fluxstore/infrastructure/config"
	"fluxstore/infrastructure/messaging/membus"
	"fluxstore/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Collector
	KV       ports.KVStore
	Bus      *membus.Bus
	Store    *valuestore.Store
	Catalog  *valuestore.Catalog
	Resolver *valuestore.Resolver
	Queue    *execqueue.Queue
	Index    *registry.DependencyIndex
	Engine   *registry.Engine
	Handler  http.Handler
}

// Shutdown releases container resources
func (c *Container) Shutdown() error {
	c.Engine.Stop()
	c.Resolver.Stop()
	return c.KV.Close()
}
