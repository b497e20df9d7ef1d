package service

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/entity"
)

// Descriptor reports one interval method a runner registered.
type Descriptor struct {
	Entity       string
	Method       string
	Handle       Handle
	LastExecuted time.Time
}

// Runner executes the service methods of every registered entity. Start
// runs seeds and startup hooks and registers interval methods; Stop runs
// shutdown hooks and cancels exactly the registrations this runner made.
type Runner struct {
	runtime   entity.Runtime
	scheduler Scheduler
	logger    *zap.Logger

	mu      sync.Mutex
	entries []*entry
}

type entry struct {
	entity  *entity.Entity
	method  entity.ServiceMethod
	handle  Handle
	lastRun time.Time
}

// NewRunner creates a runner over a runtime and scheduler.
func NewRunner(rt entity.Runtime, sched Scheduler, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{runtime: rt, scheduler: sched, logger: logger}
}

// Start runs the service lifecycle in three passes over the registry, in
// registration and declaration order: seed methods for entities whose
// table is empty, then startup methods, then interval registrations. A
// failing seed or startup method aborts the start.
func (r *Runner) Start(ctx context.Context) error {
	entities := r.runtime.Registry().Entities()

	for _, e := range entities {
		for _, m := range e.Services {
			if !m.Seed {
				continue
			}
			n, err := e.CountRecords(ctx, r.runtime.Session(ctx))
			if err != nil {
				return fmt.Errorf("seed %s.%s: %w", e.Name, m.Name, err)
			}
			if n > 0 {
				r.logger.Debug("seed skipped, table not empty",
					zap.String("entity", e.Name),
					zap.String("method", m.Name),
					zap.Int64("records", n))
				continue
			}
			r.logger.Info("running seed method",
				zap.String("entity", e.Name),
				zap.String("method", m.Name))
			if err := resolve(e, m)(ctx, r.runtime); err != nil {
				return fmt.Errorf("seed %s.%s: %w", e.Name, m.Name, err)
			}
		}
	}

	for _, e := range entities {
		for _, m := range e.Services {
			if !m.Startup {
				continue
			}
			r.logger.Info("running startup method",
				zap.String("entity", e.Name),
				zap.String("method", m.Name))
			if err := resolve(e, m)(ctx, r.runtime); err != nil {
				return fmt.Errorf("startup %s.%s: %w", e.Name, m.Name, err)
			}
		}
	}

	for _, e := range entities {
		for _, m := range e.Services {
			if m.Interval <= 0 {
				continue
			}
			r.register(e, m)
		}
	}
	return nil
}

// register schedules one interval method and records its entry for
// introspection and cancellation.
func (r *Runner) register(e *entity.Entity, m entity.ServiceMethod) {
	ent := &entry{entity: e, method: m}
	fn := resolve(e, m)

	ent.handle = r.scheduler.Cyclic(m.Interval, func(ctx context.Context) {
		if err := fn(ctx, r.runtime); err != nil {
			r.logger.Error("interval service method failed",
				zap.String("entity", e.Name),
				zap.String("method", m.Name),
				zap.Error(err))
		}
		r.mu.Lock()
		ent.lastRun = time.Now()
		r.mu.Unlock()
	})

	r.mu.Lock()
	r.entries = append(r.entries, ent)
	r.mu.Unlock()

	r.logger.Info("registered interval method",
		zap.String("entity", e.Name),
		zap.String("method", m.Name),
		zap.Duration("interval", m.Interval),
		zap.String("handle", string(ent.handle)))
}

// Stop runs shutdown methods best-effort, logging failures, and cancels
// the interval registrations this runner made.
func (r *Runner) Stop(ctx context.Context) {
	for _, e := range r.runtime.Registry().Entities() {
		for _, m := range e.Services {
			if !m.Shutdown {
				continue
			}
			r.logger.Info("running shutdown method",
				zap.String("entity", e.Name),
				zap.String("method", m.Name))
			if err := resolve(e, m)(ctx, r.runtime); err != nil {
				r.logger.Error("shutdown service method failed",
					zap.String("entity", e.Name),
					zap.String("method", m.Name),
					zap.Error(err))
			}
		}
	}

	r.mu.Lock()
	entries := r.entries
	r.entries = nil
	r.mu.Unlock()

	for _, ent := range entries {
		if err := r.scheduler.Cancel(ent.handle); err != nil {
			r.logger.Warn("cancelling interval method failed",
				zap.String("entity", ent.entity.Name),
				zap.String("method", ent.method.Name),
				zap.Error(err))
		}
	}
}

// Jobs reports the interval methods currently registered by this runner.
func (r *Runner) Jobs() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, ent := range r.entries {
		out = append(out, Descriptor{
			Entity:       ent.entity.Name,
			Method:       ent.method.Name,
			Handle:       ent.handle,
			LastExecuted: ent.lastRun,
		})
	}
	return out
}

// resolve returns the callable body of a service method: its own handler,
// or the named class-scope operation adapted to the service signature
// with an empty request.
func resolve(e *entity.Entity, m entity.ServiceMethod) entity.ServiceFunc {
	if m.Handler != nil {
		return m.Handler
	}
	op, _ := e.Operation(m.OpName)
	return func(ctx context.Context, rt entity.Runtime) error {
		_, err := op.Handler(ctx, &entity.OpRequest{
			App:    rt,
			Entity: e,
			Query:  url.Values{},
		})
		return err
	}
}
