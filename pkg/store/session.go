package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/entity"
)

// Session implements entity.Session over a lazily opened transaction. The
// first operation begins the transaction; Commit makes it durable and the
// next operation begins a fresh one. Sessions serialize their operations
// internally, so the process-wide fallback session is safe to share.
type Session struct {
	store  *Store
	logger *zap.Logger

	mu     sync.Mutex
	tx     *sql.Tx
	closed bool
}

// Session creates a new session on the store
func (st *Store) Session() *Session {
	return &Session{store: st, logger: st.logger}
}

// begin returns the live transaction, opening one if needed. Callers hold
// the session lock.
func (s *Session) begin(ctx context.Context) (*sql.Tx, error) {
	if s.closed {
		return nil, entity.ErrSessionClosed
	}
	if s.tx == nil {
		tx, err := s.store.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		s.tx = tx
	}
	return s.tx, nil
}

// Get fetches one record by id
func (s *Session) Get(ctx context.Context, e *entity.Entity, id string) (entity.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	query, fields := selectSQL(e)
	query += fmt.Sprintf(" WHERE %s = %s", quoteIdent("id"), s.store.dialect.Placeholder(1))

	values, err := scanRow(tx.QueryRowContext(ctx, query, id), len(fields))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.NewNotFoundError(e.Name, id)
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", e.Name, ConvertDBError(err))
	}
	return decodeRow(e, fields, values)
}

// Add stages an insert, updating in place when a record with the same id
// already exists.
func (s *Session) Add(ctx context.Context, e *entity.Entity, rec entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	id, _ := rec["id"].(string)
	if id == "" {
		return fmt.Errorf("cannot add %s record without an id", e.Name)
	}

	var cols, placeholders, updates []string
	var args []interface{}
	counter := 1
	for _, f := range e.Variant(entity.VariantDB).Fields {
		value, present := rec[f.Name]
		if !present {
			continue
		}
		encoded, err := encodeValue(f.Type, value)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", e.Name, f.Name, err)
		}
		cols = append(cols, quoteIdent(f.Name))
		placeholders = append(placeholders, s.store.dialect.Placeholder(counter))
		args = append(args, encoded)
		counter++
		if f.Name != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(f.Name), quoteIdent(f.Name)))
		}
	}

	conflict := "DO NOTHING"
	if len(updates) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(updates, ", ")
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		quoteIdent(e.Table),
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
		quoteIdent("id"),
		conflict,
	)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save %s: %w", e.Name, ConvertDBError(err))
	}
	return nil
}

// Commit makes staged changes durable. A session with nothing staged
// commits trivially.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return entity.ErrSessionClosed
	}
	if s.tx == nil {
		return nil
	}

	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", ConvertDBError(err))
	}
	return nil
}

// Refresh reloads the record's fields from storage by its id. Columns that
// are NULL clear the corresponding keys.
func (s *Session) Refresh(ctx context.Context, e *entity.Entity, rec entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	id, _ := rec["id"].(string)
	query, fields := selectSQL(e)
	query += fmt.Sprintf(" WHERE %s = %s", quoteIdent("id"), s.store.dialect.Placeholder(1))

	values, err := scanRow(tx.QueryRowContext(ctx, query, id), len(fields))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.NewNotFoundError(e.Name, id)
		}
		return fmt.Errorf("failed to refresh %s: %w", e.Name, ConvertDBError(err))
	}

	for i, f := range fields {
		if values[i] == nil {
			delete(rec, f.Name)
			continue
		}
		value, err := decodeValue(f.Type, values[i])
		if err != nil {
			return fmt.Errorf("%s.%s: %w", e.Name, f.Name, err)
		}
		rec[f.Name] = value
	}
	return nil
}

// Delete removes the record
func (s *Session) Delete(ctx context.Context, e *entity.Entity, rec entity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	id, _ := rec["id"].(string)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		quoteIdent(e.Table), quoteIdent("id"), s.store.dialect.Placeholder(1))

	result, err := tx.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", e.Name, ConvertDBError(err))
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return entity.NewNotFoundError(e.Name, id)
	}
	return nil
}

// Query starts a filtered read over the entity's records
func (s *Session) Query(e *entity.Entity) entity.Query {
	return &query{sess: s, entity: e}
}

// Close rolls back uncommitted work and releases the session. Closing an
// already closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.logger.Warn("session rollback failed", zap.Error(err))
		}
		s.tx = nil
	}
	return nil
}

// selectSQL builds the shared SELECT column list for an entity's table.
func selectSQL(e *entity.Entity) (string, []entity.Field) {
	fields := e.Variant(entity.VariantDB).Fields
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = quoteIdent(f.Name)
	}
	return fmt.Sprintf("SELECT %s FROM %s", strings.Join(names, ", "), quoteIdent(e.Table)), fields
}

// scanRow scans n columns from a row into a value slice.
func scanRow(row *sql.Row, n int) ([]interface{}, error) {
	values := make([]interface{}, n)
	ptrs := make([]interface{}, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}
	return values, nil
}
