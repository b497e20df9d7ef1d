// Package app assembles a running application from a configuration and an
// entity registry: logger, store, optional record cache, service runner,
// and the HTTP surface. An App is the entity.Runtime its handlers and
// service methods receive.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/config"
	"github.com/strata-api/strata/pkg/entity"
	"github.com/strata-api/strata/pkg/service"
	"github.com/strata-api/strata/pkg/store"
	"github.com/strata-api/strata/pkg/web/cache"
	"github.com/strata-api/strata/pkg/web/middleware"
	"github.com/strata-api/strata/pkg/web/response"
	"github.com/strata-api/strata/pkg/web/router"
)

type sessionKey struct{}

// App owns the process-level collaborators and wires them together.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	level    zap.AtomicLevel
	registry *entity.Registry
	store    *store.Store
	cache    cache.Cache
	sched    *service.CyclicScheduler
	runner   *service.Runner
	metrics  *middleware.Collector
	handler  http.Handler
	routes   []router.RouteInfo

	mu       sync.Mutex
	fallback entity.Session
	stopped  bool
}

// New builds an application: logger from the log section, store opened
// and migrated for every registered entity, cache backend when enabled,
// scheduler and service runner, and the HTTP handler with its middleware
// chain. The registry must be fully populated first; routes never change
// after this point.
func New(ctx context.Context, cfg *config.Config, reg *entity.Registry) (*App, error) {
	logger, level, err := buildLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	st, err := store.Open(cfg.Database.Driver, cfg.Database.URL, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	db := st.DB()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := st.Migrate(ctx, reg); err != nil {
		st.Close()
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		level:    level,
		registry: reg,
		store:    st,
	}

	if cfg.Cache.Enabled {
		c, err := buildCache(cfg.Cache)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to build cache: %w", err)
		}
		a.cache = c
		logger.Info("record cache enabled",
			zap.String("backend", cfg.Cache.Backend),
			zap.Duration("ttl", cfg.Cache.TTL))
	}

	a.sched = service.NewCyclicScheduler(logger.Named("service"))
	a.sched.SetCadence(cfg.Scheduler.Tick)
	a.runner = service.NewRunner(a, a.sched, logger.Named("service"))
	a.metrics = middleware.NewCollector()

	r, routes := router.NewBuilder(reg, a, router.Config{
		Logger:   logger.Named("router"),
		Cache:    a.cache,
		CacheTTL: cfg.Cache.TTL,
	}).Build()
	a.routes = routes

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		response.RenderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	a.handler = middleware.NewChain(
		middleware.RequestID(),
		middleware.Logging(logger.Named("http")),
		middleware.Recovery(logger.Named("http")),
		a.metrics.Middleware(),
		a.sessionMiddleware(),
	).Then(r)

	logger.Info("application ready",
		zap.Int("entities", reg.Count()),
		zap.Int("routes", len(routes)))
	return a, nil
}

// Start runs the service lifecycle: the scheduler loop, then seed,
// startup, and interval methods through the runner. A failing seed or
// startup method stops the scheduler again and returns the error.
func (a *App) Start(ctx context.Context) error {
	a.sched.Start()
	if err := a.runner.Start(ctx); err != nil {
		a.sched.Stop()
		return err
	}
	return nil
}

// Stop winds the application down: shutdown methods and interval
// deregistration, the scheduler loop, the fallback session, and the
// store. Safe to call after a failed Start; later calls do nothing.
func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.mu.Unlock()

	a.runner.Stop(ctx)
	a.sched.Stop()

	a.mu.Lock()
	if a.fallback != nil {
		a.fallback.Close()
		a.fallback = nil
	}
	a.mu.Unlock()

	if err := a.store.Close(); err != nil {
		a.logger.Error("closing store failed", zap.Error(err))
	}
	a.logger.Info("application stopped")
}

// Session returns the request-scoped session when the context carries
// one, and the process-wide fallback session otherwise. The fallback is
// created lazily and shared; request sessions come from the HTTP
// middleware and close when their request ends.
func (a *App) Session(ctx context.Context) entity.Session {
	if s, ok := ctx.Value(sessionKey{}).(entity.Session); ok {
		return s
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fallback == nil {
		a.fallback = a.store.Session()
	}
	return a.fallback
}

// Registry returns the entity registry
func (a *App) Registry() *entity.Registry { return a.registry }

// Logger returns the application logger
func (a *App) Logger() *zap.Logger { return a.logger }

// Handler returns the full HTTP surface with middleware applied
func (a *App) Handler() http.Handler { return a.handler }

// Routes returns the generated route table
func (a *App) Routes() []router.RouteInfo { return a.routes }

// Jobs returns the interval service methods the runner registered
func (a *App) Jobs() []service.Descriptor { return a.runner.Jobs() }

// Level returns the atomic log level, for config hot-reload
func (a *App) Level() zap.AtomicLevel { return a.level }

// sessionMiddleware opens a store session per request, injects it into
// the request context, and closes it when the request ends, rolling back
// anything uncommitted.
func (a *App) sessionMiddleware() middleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := a.store.Session()
			defer sess.Close()
			ctx := context.WithValue(r.Context(), sessionKey{}, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// buildLogger constructs the zap logger from the log section: production
// JSON by default, development encoding for console format, level behind
// an atomic handle so watchers can change it at runtime.
func buildLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := cfg.ZapLevel()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	level := zap.NewAtomicLevelAt(lvl)

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	return logger, level, nil
}

func buildCache(cfg config.CacheConfig) (cache.Cache, error) {
	base := cache.DefaultConfig()
	if cfg.TTL > 0 {
		base.DefaultTTL = cfg.TTL
	}
	switch cfg.Backend {
	case "memory":
		return cache.NewMemoryCacheWithConfig(base), nil
	case "redis":
		return cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Config:   base,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
