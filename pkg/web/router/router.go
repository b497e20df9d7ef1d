// Package router derives the HTTP surface from compiled entities. Every
// registered entity is mounted under its route prefix with generated CRUD
// routes, per-field attribute routes for list and map fields, and the
// entity's custom operations. A custom operation declared on the same
// scope, method, and path as a generated route replaces it.
package router

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/entity"
	"github.com/strata-api/strata/pkg/web/cache"
	"github.com/strata-api/strata/pkg/web/response"
)

// Config carries the collaborators route building needs beyond the
// registry and runtime.
type Config struct {
	Logger *zap.Logger

	// Cache, when set, enables read-through caching of read-by-id
	// responses. Writes invalidate or refresh the cached projection.
	Cache    cache.Cache
	CacheTTL time.Duration
}

// RouteInfo describes one mounted route, for logging and the routes
// command.
type RouteInfo struct {
	Entity      string
	Operation   string
	Method      string
	Path        string
	Scope       entity.Scope
	Description string
}

// Builder generates and mounts entity routes. It also owns the
// process-level class attribute state that class-scope attribute routes
// read and mutate.
type Builder struct {
	registry *entity.Registry
	runtime  entity.Runtime
	logger   *zap.Logger
	cache    cache.Cache
	cacheTTL time.Duration

	mu         sync.RWMutex
	classAttrs map[string]entity.Record
}

// NewBuilder creates a route builder over a registry and runtime.
func NewBuilder(registry *entity.Registry, runtime entity.Runtime, cfg Config) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		registry:   registry,
		runtime:    runtime,
		logger:     logger,
		cache:      cfg.Cache,
		cacheTTL:   cfg.CacheTTL,
		classAttrs: make(map[string]entity.Record),
	}
}

// Build mounts every registered entity under "/"+Prefix and returns the
// router together with the route table, ordered by registration.
func (b *Builder) Build() (chi.Router, []RouteInfo) {
	r := chi.NewRouter()
	// Set before mounting so entity sub-routers inherit the envelope
	// fallbacks.
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.RenderErrorWithCode(w, http.StatusNotFound, errors.New("route not found"), "NOT_FOUND")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.RenderErrorWithCode(w, http.StatusMethodNotAllowed, errors.New("method not allowed"), "METHOD_NOT_ALLOWED")
	})

	var routes []RouteInfo
	for _, e := range b.registry.Entities() {
		sub, entityRoutes := b.buildEntity(e)
		r.Mount("/"+e.Prefix, sub)
		routes = append(routes, entityRoutes...)
		b.logger.Debug("mounted entity",
			zap.String("entity", e.Name),
			zap.String("prefix", "/"+e.Prefix),
			zap.Int("routes", len(entityRoutes)))
	}
	return r, dedupeRoutes(routes)
}

// buildEntity assembles the sub-router for one entity: generated CRUD
// routes first, then attribute routes, then custom operations. Later
// registrations win when patterns collide, so custom operations shadow
// anything generated.
func (b *Builder) buildEntity(e *entity.Entity) (chi.Router, []RouteInfo) {
	r := chi.NewRouter()
	var routes []RouteInfo

	b.seedClassAttrs(e)

	overridden := make(map[string]bool, len(e.Operations))
	for _, op := range e.Operations {
		overridden[overrideKey(op.Scope, op.Method, op.Path)] = true
	}

	for _, bi := range builtinRoutes {
		if overridden[overrideKey(bi.scope, bi.method, bi.path)] {
			continue
		}
		pattern := scopePattern(bi.scope, bi.path)
		r.Method(bi.method, pattern, bi.handler(b, e))
		routes = append(routes, RouteInfo{
			Entity:      e.Name,
			Operation:   bi.op,
			Method:      bi.method,
			Path:        fullPath(e.Prefix, pattern),
			Scope:       bi.scope,
			Description: bi.desc,
		})
	}

	routes = append(routes, b.mountAttrRoutes(r, e)...)

	for _, op := range e.Operations {
		pattern := scopePattern(op.Scope, op.Path)
		r.Method(op.Method, pattern, b.opHandler(e, op))
		routes = append(routes, RouteInfo{
			Entity:      e.Name,
			Operation:   op.Name,
			Method:      op.Method,
			Path:        fullPath(e.Prefix, pattern),
			Scope:       op.Scope,
			Description: "custom operation",
		})
	}

	return r, routes
}

// builtinRoute describes one generated CRUD route.
type builtinRoute struct {
	op      string
	scope   entity.Scope
	method  string
	path    string
	desc    string
	handler func(*Builder, *entity.Entity) http.HandlerFunc
}

var builtinRoutes = []builtinRoute{
	{op: "create", scope: entity.ScopeClass, method: http.MethodPost, path: "", desc: "create a record", handler: (*Builder).createHandler},
	{op: "list", scope: entity.ScopeClass, method: http.MethodGet, path: "", desc: "list records by ids or by offset and limit", handler: (*Builder).listHandler},
	{op: "read", scope: entity.ScopeInstance, method: http.MethodGet, path: "", desc: "fetch a record by id", handler: (*Builder).readHandler},
	{op: "update", scope: entity.ScopeInstance, method: http.MethodPatch, path: "", desc: "apply a partial update", handler: (*Builder).updateHandler},
	{op: "delete", scope: entity.ScopeInstance, method: http.MethodDelete, path: "", desc: "delete a record", handler: (*Builder).deleteHandler},
	{op: "delete", scope: entity.ScopeInstance, method: http.MethodPost, path: "delete", desc: "delete a record", handler: (*Builder).deleteHandler},
}

// overrideKey identifies a route slot for built-in override checks.
func overrideKey(scope entity.Scope, method, path string) string {
	return string(scope) + " " + method + " " + entity.NormalizePath(path)
}

// scopePattern converts a scope-relative operation path into a chi
// pattern. Instance routes live under /{id}.
func scopePattern(scope entity.Scope, path string) string {
	path = entity.NormalizePath(path)
	switch {
	case scope == entity.ScopeInstance && path == "":
		return "/{id}"
	case scope == entity.ScopeInstance:
		return "/{id}/" + path
	case path == "":
		return "/"
	default:
		return "/" + path
	}
}

// fullPath joins an entity prefix with a sub-router pattern for the route
// table.
func fullPath(prefix, pattern string) string {
	if pattern == "/" {
		return "/" + prefix
	}
	return "/" + prefix + pattern
}

// dedupeRoutes drops earlier entries that a later registration shadowed,
// keeping the route table aligned with what the router actually serves.
func dedupeRoutes(routes []RouteInfo) []RouteInfo {
	last := make(map[string]int, len(routes))
	for i, rt := range routes {
		last[rt.Method+" "+rt.Path] = i
	}
	out := make([]RouteInfo, 0, len(routes))
	for i, rt := range routes {
		if last[rt.Method+" "+rt.Path] == i {
			out = append(out, rt)
		}
	}
	return out
}

// seedClassAttrs copies the declared defaults of every container field
// into the builder's class attribute state. Class-scope attribute routes
// operate on these process-level values without touching stored records.
func (b *Builder) seedClassAttrs(e *entity.Entity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.classAttrs[e.Name]; ok {
		return
	}
	state := entity.Record{}
	for _, kind := range []entity.VariantKind{entity.VariantRead, entity.VariantUpdate} {
		v := e.Variant(kind)
		for _, f := range append(v.ListFields(), v.MapFields()...) {
			if _, ok := state[f.Name]; ok {
				continue
			}
			state[f.Name] = classDefault(f)
		}
	}
	b.classAttrs[e.Name] = state
}

// classDefault is the initial class value for a container field: a deep
// copy of the declared default, or an empty container.
func classDefault(f entity.Field) interface{} {
	if f.Default != nil {
		return entity.DeepCopyValue(f.Default)
	}
	if f.Type.IsList() {
		return []interface{}{}
	}
	return map[string]interface{}{}
}

// classAttr returns a deep copy of a class attribute value.
func (b *Builder) classAttr(entityName, field string) interface{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return entity.DeepCopyValue(b.classAttrs[entityName][field])
}

// mutateClassAttr applies fn to a class attribute under the write lock.
// fn returns the replacement value and the response payload; the state
// only changes when fn succeeds.
func (b *Builder) mutateClassAttr(entityName, field string, fn func(interface{}) (interface{}, interface{}, error)) (interface{}, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.classAttrs[entityName]
	next, result, err := fn(state[field])
	if err != nil {
		return nil, err
	}
	state[field] = next
	return result, nil
}
