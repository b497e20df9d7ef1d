package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/entity"
)

// Migrate creates the table for every registered entity if it does not
// exist yet. Columns come from the DB variant, so storage-only extras get
// columns and excluded fields do not. Existing tables are left alone;
// there is no diffing or column migration.
func (st *Store) Migrate(ctx context.Context, reg *entity.Registry) error {
	for _, e := range reg.Entities() {
		ddl := createTableSQL(st.dialect, e)
		if _, err := st.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", e.Table, ConvertDBError(err))
		}
		st.logger.Info("ensured table",
			zap.String("entity", e.Name),
			zap.String("table", e.Table))
	}
	return nil
}

// createTableSQL builds the CREATE TABLE statement for one entity.
func createTableSQL(dialect Dialect, e *entity.Entity) string {
	db := e.Variant(entity.VariantDB)

	cols := make([]string, 0, len(db.Fields))
	for _, f := range db.Fields {
		col := fmt.Sprintf("%s %s", quoteIdent(f.Name), dialect.ColumnType(f.Type))
		if f.Name == "id" {
			col += " PRIMARY KEY"
		} else if !f.Nullable {
			col += " NOT NULL"
		}
		cols = append(cols, col)
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		quoteIdent(e.Table), strings.Join(cols, ",\n  "))
}

// quoteIdent double-quotes an identifier. Field and table names are
// validated at registration, so no escaping is needed.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
