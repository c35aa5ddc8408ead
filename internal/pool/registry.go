package pool

import (
	"sync"

	"github.com/tasksql/taskdb/internal/connector"
)

// Registry deduplicates Pools by the DSN-derived key their Builder
// reports, so two requests for the same cluster share one Pool. Unlike the
// source's process-wide singleton, Registry is an explicit, injectable
// type: tests construct their own Registry to get fully isolated pools.
type Registry struct {
	mu    sync.Mutex
	pools map[string]*Pool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*Pool)}
}

// GetOrCreate returns the existing Pool for builder.Key(), or creates one
// with cfg if none exists yet. cfg is ignored on a cache hit.
func (r *Registry) GetOrCreate(builder connector.Builder, cfg Config) *Pool {
	key := builder.Key()

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[key]; ok {
		return p
	}
	p := New(builder, cfg)
	r.pools[key] = p
	return p
}

// Close closes and unregisters the pool for key, if any.
func (r *Registry) Close(key string) error {
	r.mu.Lock()
	p, ok := r.pools[key]
	if ok {
		delete(r.pools, key)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return p.Close()
}

// CloseAll closes and unregisters every pool the registry knows about.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	pools := r.pools
	r.pools = make(map[string]*Pool)
	r.mu.Unlock()
	for _, p := range pools {
		p.Close()
	}
}
