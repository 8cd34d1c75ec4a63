package executor

import (
	"errors"
	"sort"
	"sync"

	"Confluence/internal/domain/repository"
	"Confluence/internal/service/ratelimit"
)

// Registry hands out exactly one Executor per endpoint name so every call
// site for that endpoint goes through the same breaker and throttle window.
type Registry struct {
	mu        sync.Mutex
	executors map[string]*Executor
	cfg       Config
	throttle  *ratelimit.Throttle
	factory   repository.ClientFactory
	opts      []Option
}

func NewRegistry(cfg Config, th *ratelimit.Throttle, factory repository.ClientFactory, opts ...Option) *Registry {
	return &Registry{
		executors: make(map[string]*Executor),
		cfg:       cfg,
		throttle:  th,
		factory:   factory,
		opts:      opts,
	}
}

// For returns the executor for endpoint, creating it on first use.
func (r *Registry) For(endpoint string) *Executor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.executors[endpoint]; ok {
		return e
	}
	e := New(endpoint, r.cfg, r.throttle, r.factory, r.opts...)
	r.executors[endpoint] = e
	return e
}

// Snapshot returns breaker state of every known endpoint, sorted by name.
func (r *Registry) Snapshot() []BreakerSnapshot {
	r.mu.Lock()
	out := make([]BreakerSnapshot, 0, len(r.executors))
	for name, e := range r.executors {
		out = append(out, e.breaker.Snapshot(name))
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, e := range r.executors {
		if err := e.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
