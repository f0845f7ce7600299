package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
)

type routeKey struct {
	kind   string
	action Action
}

type registration struct {
	name    string
	handler HandlerFunc
}

// Registry maps {kind, action} to handlers. It is filled at startup and
// read-only once handed to a Router.
type Registry struct {
	mu     sync.RWMutex
	routes map[routeKey][]registration
}

func NewRegistry() *Registry {
	return &Registry{routes: make(map[routeKey][]registration)}
}

// Register subscribes h to the given actions of kind.
func (r *Registry) Register(kind, name string, actions []Action, h HandlerFunc) error {
	if kind == "" || name == "" || h == nil {
		return fmt.Errorf("register %q/%q: kind, name and handler are required", kind, name)
	}
	if len(actions) == 0 {
		return fmt.Errorf("register %s/%s: no actions", kind, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range actions {
		key := routeKey{kind: kind, action: a}
		for _, existing := range r.routes[key] {
			if existing.name == name {
				return fmt.Errorf("register %s/%s: already subscribed to %s", kind, name, a)
			}
		}
		r.routes[key] = append(r.routes[key], registration{name: name, handler: h})
	}
	return nil
}

func (r *Registry) lookup(kind string, action Action) []registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	regs := r.routes[routeKey{kind: kind, action: action}]
	return append([]registration(nil), regs...)
}

// Kinds lists the kinds with at least one subscription.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for k := range r.routes {
		seen[k.kind] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Outcome is reported once per handler invocation.
type Outcome func(evt DomainEvent, handler string, err error)

type RouterOption func(*Router)

// WithOutcome registers a callback invoked after every handler run.
func WithOutcome(fn Outcome) RouterOption {
	return func(r *Router) { r.outcome = fn }
}

// Router schedules handlers for delivered events.
type Router struct {
	registry  *Registry
	logger    zerolog.Logger
	principal auth.Principal
	outcome   Outcome
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewRouter(registry *Registry, logger zerolog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		registry:  registry,
		logger:    logger,
		principal: auth.SystemPrincipal("event-router"),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Dispatch schedules every handler subscribed to the event and returns how
// many were scheduled. Invalid events are logged and dropped; events whose
// action no handler subscribed to are ignored. Dispatch never blocks on
// handler work.
func (r *Router) Dispatch(evt DomainEvent) int {
	if err := evt.Validate(); err != nil {
		r.logger.Warn().Err(err).Str("kind", evt.Kind).Str("uuid", evt.UUID).Msg("dropping event")
		return 0
	}
	evt = evt.withDefaults(r.now())
	regs := r.registry.lookup(evt.Kind, evt.Action)
	if len(regs) == 0 {
		r.logger.Debug().Str("kind", evt.Kind).Str("action", string(evt.Action)).Msg("no subscribers")
		return 0
	}
	for _, reg := range regs {
		r.wg.Add(1)
		go r.run(reg, evt)
	}
	return len(regs)
}

func (r *Router) run(reg registration, evt DomainEvent) {
	defer r.wg.Done()
	log := r.logger.With().
		Str("handler", reg.name).
		Str("event_id", evt.ID).
		Str("kind", evt.Kind).
		Str("action", string(evt.Action)).
		Str("uuid", evt.UUID).
		Logger()

	var err error
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
			log.Error().Err(err).Msg("handler panicked")
		}
		if r.outcome != nil {
			r.outcome(evt, reg.name, err)
		}
	}()

	// Work is detached from the delivering request and cannot be cancelled.
	ctx := log.WithContext(context.Background())
	err = reg.handler(ctx, r.principal, evt)
	switch {
	case err == nil:
		log.Debug().Msg("event handled")
	case errors.Is(err, ErrInvalidEvent):
		log.Warn().Err(err).Msg("event dropped")
	default:
		log.Error().Err(err).Msg("event handling failed")
	}
}

// Wait blocks until every scheduled handler has returned.
func (r *Router) Wait() {
	r.wg.Wait()
}
