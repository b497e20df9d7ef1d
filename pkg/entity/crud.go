package entity

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Built-in record operations. These back the auto-mounted CRUD routes and
// are the building blocks custom operations compose: an operation that
// overrides creation validates its payload, then calls CreateRecord the
// same way the default route would.

// CreateRecord persists a new record. The record is projected through the
// DB variant, the identity field is generated when absent, declared
// defaults fill missing fields, and required fields are enforced. The
// caller is responsible for restricting client input to the Create
// variant first; the default POST route does.
func (e *Entity) CreateRecord(ctx context.Context, s Session, data Record) (Record, error) {
	rec, err := e.Project(VariantDB, data)
	if err != nil {
		return nil, err
	}

	db := e.Variant(VariantDB)
	if id, _ := rec["id"].(string); id == "" {
		if f, ok := db.Field("id"); ok && generatesID(f.Type) {
			rec["id"] = uuid.NewString()
		}
	}

	ve := &ValidationError{}
	for _, f := range db.Fields {
		if _, present := rec[f.Name]; present {
			continue
		}
		if f.Default != nil {
			rec[f.Name] = DeepCopyValue(f.Default)
			continue
		}
		if empty, ok := emptyValue(f.Type); ok {
			rec[f.Name] = empty
			continue
		}
		if !f.Nullable && f.Name != "id" {
			ve.Add(f.Name, "is required")
		}
	}
	if len(ve.Errors) > 0 {
		return nil, ve
	}

	if err := s.Add(ctx, e, rec); err != nil {
		return nil, err
	}
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx, e, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID fetches one record, returning a NotFoundError on a miss
func (e *Entity) GetByID(ctx context.Context, s Session, id string) (Record, error) {
	rec, err := s.Get(ctx, e, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, NewNotFoundError(e.Name, id)
		}
		return nil, err
	}
	return rec, nil
}

// GetByIDs fetches the records matching any of the given ids. Missing ids
// are skipped, but when none match the result is a NotFoundError, which
// is distinct from an empty unfiltered listing.
func (e *Entity) GetByIDs(ctx context.Context, s Session, ids []string) ([]Record, error) {
	values := make([]interface{}, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	recs, err := s.Query(e).WhereIn("id", values).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, NewNotFoundError(e.Name, strings.Join(ids, ","))
	}
	return recs, nil
}

// GetAll lists records with optional pagination. Zero offset and limit
// mean unbounded.
func (e *Entity) GetAll(ctx context.Context, s Session, offset, limit int) ([]Record, error) {
	q := s.Query(e)
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q.All(ctx)
}

// UpdateRecord applies a partial update to the record with the given id.
// Only payload keys that belong to the Update variant are applied; the
// identity field is never updatable.
func (e *Entity) UpdateRecord(ctx context.Context, s Session, id string, updates Record) (Record, error) {
	existing, err := e.GetByID(ctx, s, id)
	if err != nil {
		return nil, err
	}

	changes, err := e.Project(VariantUpdate, updates)
	if err != nil {
		return nil, err
	}
	delete(changes, "id")

	rec := CopyRecord(existing)
	for name, value := range changes {
		rec[name] = value
	}

	if err := s.Add(ctx, e, rec); err != nil {
		return nil, err
	}
	if err := s.Commit(ctx); err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx, e, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteRecord removes the record with the given id
func (e *Entity) DeleteRecord(ctx context.Context, s Session, id string) error {
	existing, err := e.GetByID(ctx, s, id)
	if err != nil {
		return err
	}
	if err := s.Delete(ctx, e, existing); err != nil {
		return err
	}
	return s.Commit(ctx)
}

// CountRecords returns the number of stored records
func (e *Entity) CountRecords(ctx context.Context, s Session) (int64, error) {
	return s.Query(e).Count(ctx)
}

// generatesID reports whether the identity field's type supports
// server-side generation. Integer identities must be supplied by the
// caller or the storage engine.
func generatesID(t Type) bool {
	switch t.Kind {
	case KindUUID, KindString, KindText:
		return true
	}
	return false
}
