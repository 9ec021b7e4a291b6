package services

import (
	"github.com/kestrelworks/queryd/internal/cache"
	"github.com/kestrelworks/queryd/internal/events"
	"github.com/kestrelworks/queryd/internal/knowledge"
	"github.com/kestrelworks/queryd/internal/pool"
	"github.com/kestrelworks/queryd/internal/query"
)

// Registry provides access to all queryd services.
// Use accessor methods to retrieve individual services.
type Registry interface {
	Cache() *cache.Cache
	Pool() *pool.Coordinator
	Orchestrator() *query.Orchestrator
	Knowledge() *knowledge.Store
	Events() events.Publisher
}

// Options configures the registry with service instances.
type Options struct {
	Cache        *cache.Cache
	Pool         *pool.Coordinator
	Orchestrator *query.Orchestrator
	Knowledge    *knowledge.Store
	Events       events.Publisher
}

// registry is the concrete implementation of Registry.
type registry struct {
	cache        *cache.Cache
	pool         *pool.Coordinator
	orchestrator *query.Orchestrator
	knowledge    *knowledge.Store
	events       events.Publisher
}

// NewRegistry creates a new service registry.
func NewRegistry(opts Options) Registry {
	return &registry{
		cache:        opts.Cache,
		pool:         opts.Pool,
		orchestrator: opts.Orchestrator,
		knowledge:    opts.Knowledge,
		events:       opts.Events,
	}
}

func (r *registry) Cache() *cache.Cache               { return r.cache }
func (r *registry) Pool() *pool.Coordinator           { return r.pool }
func (r *registry) Orchestrator() *query.Orchestrator { return r.orchestrator }
func (r *registry) Knowledge() *knowledge.Store       { return r.knowledge }
func (r *registry) Events() events.Publisher          { return r.events }
