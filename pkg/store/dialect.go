package store

import (
	"fmt"

	"github.com/strata-api/strata/pkg/entity"
)

// Dialect abstracts the SQL differences between the supported engines:
// parameter placeholders and column types. Statement shapes are shared;
// both engines understand INSERT ... ON CONFLICT.
type Dialect interface {
	Name() string

	// Placeholder returns the bind marker for the nth parameter, 1-based.
	Placeholder(n int) string

	// ColumnType maps a field type to the engine's column type.
	ColumnType(t entity.Type) string
}

// DialectFor resolves the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q (use pgx or sqlite3)", driver)
	}
}

// Postgres is the PostgreSQL dialect, used with the pgx stdlib driver.
var Postgres Dialect = postgresDialect{}

// SQLite is the SQLite dialect, used with the mattn driver.
var SQLite Dialect = sqliteDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (postgresDialect) ColumnType(t entity.Type) string {
	switch t.Kind {
	case entity.KindString, entity.KindText:
		return "TEXT"
	case entity.KindInt:
		return "BIGINT"
	case entity.KindFloat:
		return "DOUBLE PRECISION"
	case entity.KindBool:
		return "BOOLEAN"
	case entity.KindTime:
		return "TIMESTAMPTZ"
	case entity.KindUUID:
		return "UUID"
	default:
		// Lists and maps are stored as JSON documents.
		return "JSONB"
	}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Placeholder(n int) string {
	return "?"
}

func (sqliteDialect) ColumnType(t entity.Type) string {
	switch t.Kind {
	case entity.KindInt:
		return "INTEGER"
	case entity.KindFloat:
		return "REAL"
	case entity.KindBool:
		// Declared BOOLEAN so the driver scans back a Go bool.
		return "BOOLEAN"
	case entity.KindTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}
