package entity

import (
	"context"

	"go.uber.org/zap"
)

// Session is the persistence collaborator. The core never builds SQL; it
// drives whatever implements this interface. All methods fail with
// ErrSessionClosed after Close.
type Session interface {
	// Get fetches one record by id, returning an error matching
	// ErrNotFound on a miss.
	Get(ctx context.Context, e *Entity, id string) (Record, error)

	// Add stages an insert, or an update when a record with the same id
	// already exists.
	Add(ctx context.Context, e *Entity, rec Record) error

	// Commit makes staged changes durable. The session stays usable; the
	// next operation opens a fresh transaction.
	Commit(ctx context.Context) error

	// Refresh reloads the record's fields from storage by its id.
	Refresh(ctx context.Context, e *Entity, rec Record) error

	// Delete removes the record.
	Delete(ctx context.Context, e *Entity, rec Record) error

	// Query starts a filtered read over the entity's records.
	Query(e *Entity) Query

	// Close releases the session, rolling back uncommitted work.
	Close() error
}

// Query builds and runs a filtered read. Implementations are not safe for
// concurrent use; build and run a query within one request.
type Query interface {
	Where(field, op string, value interface{}) Query
	WhereIn(field string, values []interface{}) Query
	Offset(n int) Query
	Limit(n int) Query

	All(ctx context.Context) ([]Record, error)
	First(ctx context.Context) (Record, error)
	Count(ctx context.Context) (int64, error)
}

// Runtime is what operation handlers and service methods receive in place
// of an ambient current application: session access, the entity registry,
// and a logger.
type Runtime interface {
	// Session returns the request-scoped session when the context carries
	// one, and the process-wide fallback session otherwise.
	Session(ctx context.Context) Session

	Registry() *Registry

	Logger() *zap.Logger
}
