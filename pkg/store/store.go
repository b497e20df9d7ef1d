// Package store persists entity records behind the entity.Session
// interface. It speaks plain SQL through database/sql, supports
// PostgreSQL (pgx) and SQLite, derives each entity's table from its DB
// variant, and maps engine errors to the shared error types.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	"go.uber.org/zap"
)

// Store wraps a database connection pool with its dialect. A process owns
// one Store; sessions are cheap and per-request.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open connects to the database and verifies the connection. Supported
// drivers are "pgx" and "sqlite3".
func Open(driver, dsn string, logger *zap.Logger) (*Store, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info("database connected",
		zap.String("driver", driver),
		zap.String("dialect", dialect.Name()))

	return New(db, dialect, logger), nil
}

// New wraps an existing connection pool. Used by Open and by tests that
// bring their own database.
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	return &Store{db: db, dialect: dialect, logger: logger}
}

// DB exposes the underlying pool
func (st *Store) DB() *sql.DB {
	return st.db
}

// Dialect returns the store's SQL dialect
func (st *Store) Dialect() Dialect {
	return st.dialect
}

// Close closes the connection pool
func (st *Store) Close() error {
	return st.db.Close()
}
