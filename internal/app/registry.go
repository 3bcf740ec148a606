package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang-mq-relay/internal/domain"
	"golang-mq-relay/internal/ports"
)

type route struct {
	dest    domain.Destination
	handler ports.Handler
}

// Registry maps destinations to handlers and owns the listeners built for
// them: one listener per route for the life of the process.
type Registry struct {
	routes []route
	log    *slog.Logger

	mu        sync.Mutex
	listeners []ports.Listener
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{log: log}
}

// Route registers handler for dest. A destination takes one handler.
func (r *Registry) Route(dest domain.Destination, handler ports.Handler) error {
	for _, rt := range r.routes {
		if rt.dest == dest {
			return fmt.Errorf("route %s: %w", dest, domain.ErrDuplicateRoute)
		}
	}
	r.routes = append(r.routes, route{dest: dest, handler: handler})
	return nil
}

// StartAll builds and starts a listener per route, in registration order.
// On failure the listeners already started are stopped again.
func (r *Registry) StartAll(ctx context.Context, factory ports.ListenerFactory) error {
	r.mu.Lock()
	running := len(r.listeners) > 0
	r.mu.Unlock()
	if running {
		return domain.ErrContainerRunning
	}

	for _, rt := range r.routes {
		l := factory(rt.dest, rt.handler)
		if err := l.Start(ctx); err != nil {
			return errors.Join(err, r.StopAll(ctx))
		}
		r.mu.Lock()
		r.listeners = append(r.listeners, l)
		r.mu.Unlock()
		r.log.Info("route listening", "destination", rt.dest.String())
	}
	return nil
}

// StopAll stops the listeners in reverse start order.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	listeners := r.listeners
	r.listeners = nil
	r.mu.Unlock()

	var errs []error
	for i := len(listeners) - 1; i >= 0; i-- {
		l := listeners[i]
		if err := l.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", l.Destination(), err))
		}
	}
	return errors.Join(errs...)
}

// Listeners returns the running listeners. Safe to call while StopAll runs.
func (r *Registry) Listeners() []ports.Listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ports.Listener(nil), r.listeners...)
}
