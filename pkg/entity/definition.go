package entity

import (
	"context"
	"net/url"
	"time"
)

// Scope determines whether an operation runs against the entity as a whole
// or against one fetched record
type Scope string

// Operation scopes
const (
	// ScopeClass operations mount directly under the entity's route prefix
	ScopeClass Scope = "class"

	// ScopeInstance operations mount under /{id} and run with the record
	// already fetched; a missing id produces not-found before the handler
	ScopeInstance Scope = "instance"
)

// HandlerFunc is the signature for custom operation handlers. The returned
// value is rendered as the JSON response body; returned errors map to HTTP
// statuses by type (ValidationError to 400, NotFoundError to 404, anything
// else to 500).
type HandlerFunc func(ctx context.Context, req *OpRequest) (interface{}, error)

// OpRequest carries everything an operation handler receives. App is the
// owning runtime, passed explicitly rather than looked up ambiently.
type OpRequest struct {
	App    Runtime
	Entity *Entity

	// Instance is the fetched record for instance-scope operations, nil
	// for class scope.
	Instance Record

	// Payload is the decoded JSON request body, nil when the request had
	// none.
	Payload Record

	Query url.Values
}

// Operation declares one HTTP operation on an entity. Declaring an
// operation with the same scope, method, and path as a built-in CRUD
// operation replaces the built-in.
type Operation struct {
	Name   string
	Method string

	// Path is relative to the entity's mount point: "" is the scope root,
	// "delete" mounts at /delete (class) or /{id}/delete (instance).
	Path string

	Scope   Scope
	Handler HandlerFunc
}

// ServiceFunc is the signature for service method handlers. Service
// methods receive the runtime explicitly and take no other arguments.
type ServiceFunc func(ctx context.Context, rt Runtime) error

// ServiceMethod declares an entity-scoped background operation. Exactly
// one of Handler or OpName must be set; OpName must name a class-scope
// operation on the same entity. At least one trigger (Startup, Shutdown,
// Seed, Interval) must be set.
type ServiceMethod struct {
	Name string

	// Startup methods run synchronously, in declaration order, when the
	// application starts; an error aborts startup.
	Startup bool

	// Shutdown methods run when the application stops; errors are logged,
	// never raised.
	Shutdown bool

	// Seed methods run at startup only when the entity's table is empty.
	Seed bool

	// Interval registers the method with the cyclic scheduler at the given
	// period. Zero means no interval trigger.
	Interval time.Duration

	Handler ServiceFunc

	// OpName runs a declared class-scope operation as the service body,
	// with an empty request.
	OpName string
}

// Definition is the explicit entity declaration consumed by Register. It
// replaces reflective discovery: fields, variant directives, operations,
// and service methods are all stated up front.
type Definition struct {
	// Name is the declared type name. Its snake_case form, with leading
	// underscores stripped, becomes the route prefix.
	Name string

	// Parent optionally names a previously registered entity whose fields
	// and variants this entity builds on.
	Parent string

	Fields []Field

	// Include and Exclude restrict which of the entity's own fields
	// participate in variant derivation, before per-variant directives
	// apply. Nil means no restriction.
	Include []string
	Exclude []string

	Variants   []VariantDecl
	Operations []Operation
	Services   []ServiceMethod
}
