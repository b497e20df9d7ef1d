package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/strata-api/strata/pkg/entity"
)

// whereOps maps accepted comparison operators to their SQL spelling.
var whereOps = map[string]string{
	"=":    "=",
	"!=":   "<>",
	"<":    "<",
	"<=":   "<=",
	">":    ">",
	">=":   ">=",
	"like": "LIKE",
	"LIKE": "LIKE",
}

type condition struct {
	field string
	op    string
	value interface{}
}

type inCondition struct {
	field  string
	values []interface{}
}

// query implements entity.Query. Builder mistakes (unknown field, bad
// operator) are captured and surfaced when the query runs.
type query struct {
	sess   *Session
	entity *entity.Entity

	conds  []condition
	ins    []inCondition
	offset *int
	limit  *int
	err    error
}

func (q *query) fail(format string, args ...interface{}) {
	if q.err == nil {
		q.err = fmt.Errorf(format, args...)
	}
}

// Where adds a comparison condition on a stored field
func (q *query) Where(field, op string, value interface{}) entity.Query {
	sqlOp, ok := whereOps[op]
	if !ok {
		q.fail("unsupported operator %q", op)
		return q
	}
	if !q.entity.Variant(entity.VariantDB).Has(field) {
		q.fail("field %s does not exist on %s", field, q.entity.Name)
		return q
	}
	q.conds = append(q.conds, condition{field: field, op: sqlOp, value: value})
	return q
}

// WhereIn adds a membership condition on a stored field
func (q *query) WhereIn(field string, values []interface{}) entity.Query {
	if !q.entity.Variant(entity.VariantDB).Has(field) {
		q.fail("field %s does not exist on %s", field, q.entity.Name)
		return q
	}
	q.ins = append(q.ins, inCondition{field: field, values: values})
	return q
}

// Offset skips the first n rows
func (q *query) Offset(n int) entity.Query {
	q.offset = &n
	return q
}

// Limit caps the number of returned rows
func (q *query) Limit(n int) entity.Query {
	q.limit = &n
	return q
}

// toSQL builds the statement. paging controls whether LIMIT and OFFSET
// apply; counts ignore them.
func (q *query) toSQL(selectList string, paging bool) (string, []interface{}, error) {
	var sb strings.Builder
	sb.WriteString(selectList)

	dialect := q.sess.store.dialect
	var args []interface{}
	counter := 1
	var wheres []string

	db := q.entity.Variant(entity.VariantDB)
	for _, c := range q.conds {
		f, _ := db.Field(c.field)
		encoded, err := encodeValue(f.Type, c.value)
		if err != nil {
			return "", nil, fmt.Errorf("%s.%s: %w", q.entity.Name, c.field, err)
		}
		wheres = append(wheres, fmt.Sprintf("%s %s %s", quoteIdent(c.field), c.op, dialect.Placeholder(counter)))
		args = append(args, encoded)
		counter++
	}
	for _, c := range q.ins {
		if len(c.values) == 0 {
			// IN over nothing matches nothing.
			wheres = append(wheres, "1 = 0")
			continue
		}
		placeholders := make([]string, len(c.values))
		for i, v := range c.values {
			placeholders[i] = dialect.Placeholder(counter)
			args = append(args, v)
			counter++
		}
		wheres = append(wheres, fmt.Sprintf("%s IN (%s)", quoteIdent(c.field), strings.Join(placeholders, ", ")))
	}

	if len(wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(wheres, " AND "))
	}

	if paging {
		if q.limit != nil {
			sb.WriteString(fmt.Sprintf(" LIMIT %s", dialect.Placeholder(counter)))
			args = append(args, *q.limit)
			counter++
		}
		if q.offset != nil {
			sb.WriteString(fmt.Sprintf(" OFFSET %s", dialect.Placeholder(counter)))
			args = append(args, *q.offset)
			counter++
		}
	}

	return sb.String(), args, nil
}

// All runs the query and returns every matching record
func (q *query) All(ctx context.Context) ([]entity.Record, error) {
	if q.err != nil {
		return nil, q.err
	}

	selectList, fields := selectSQL(q.entity)
	stmt, args, err := q.toSQL(selectList, true)
	if err != nil {
		return nil, err
	}

	q.sess.mu.Lock()
	defer q.sess.mu.Unlock()

	tx, err := q.sess.begin(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", q.entity.Name, ConvertDBError(err))
	}
	defer rows.Close()

	var out []entity.Record
	for rows.Next() {
		values := make([]interface{}, len(fields))
		ptrs := make([]interface{}, len(fields))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", q.entity.Name, err)
		}
		rec, err := decodeRow(q.entity, fields, values)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", q.entity.Name, ConvertDBError(err))
	}
	return out, nil
}

// First runs the query and returns the first match, or a not-found error
func (q *query) First(ctx context.Context) (entity.Record, error) {
	one := 1
	q.limit = &one
	recs, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, entity.NewNotFoundError(q.entity.Name, "")
	}
	return recs[0], nil
}

// Count returns the number of matching rows, ignoring pagination
func (q *query) Count(ctx context.Context) (int64, error) {
	if q.err != nil {
		return 0, q.err
	}

	stmt, args, err := q.toSQL(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(q.entity.Table)), false)
	if err != nil {
		return 0, err
	}

	q.sess.mu.Lock()
	defer q.sess.mu.Unlock()

	tx, err := q.sess.begin(ctx)
	if err != nil {
		return 0, err
	}

	var count int64
	if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.entity.Name, ConvertDBError(err))
	}
	return count, nil
}
