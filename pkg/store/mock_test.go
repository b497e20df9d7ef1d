package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strata-api/strata/pkg/entity"
)

func mockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres, zap.NewNop()), mock
}

func noteEntity(t *testing.T) *entity.Entity {
	t.Helper()
	reg := entity.NewRegistry()
	e, err := reg.Register(entity.Definition{
		Name:   "Note",
		Fields: []entity.Field{{Name: "title", Type: entity.TypeString}},
	})
	require.NoError(t, err)
	return e
}

func TestAddBeginFailure(t *testing.T) {
	st, mock := mockStore(t)
	e := noteEntity(t)

	boom := errors.New("pool exhausted")
	mock.ExpectBegin().WillReturnError(boom)

	sess := st.Session()
	err := sess.Add(context.Background(), e, entity.Record{"id": "7c9e6679-7425-40de-944b-e07fc1f90ae7", "title": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailurePropagates(t *testing.T) {
	st, mock := mockStore(t)
	e := noteEntity(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk full"))

	sess := st.Session()
	ctx := context.Background()
	require.NoError(t, sess.Add(ctx, e, entity.Record{"id": "7c9e6679-7425-40de-944b-e07fc1f90ae7", "title": "x"}))

	err := sess.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddMapsConstraintErrors(t *testing.T) {
	st, mock := mockStore(t)
	e := noteEntity(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO").WillReturnError(&pgconn.PgError{
		Code:   "23505",
		Detail: "Key (id) already exists.",
	})

	sess := st.Session()
	err := sess.Add(context.Background(), e, entity.Record{"id": "7c9e6679-7425-40de-944b-e07fc1f90ae7", "title": "x"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissTurnsIntoNotFound(t *testing.T) {
	st, mock := mockStore(t)
	e := noteEntity(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrNoRows)

	sess := st.Session()
	_, err := sess.Get(context.Background(), e, "7c9e6679-7425-40de-944b-e07fc1f90ae7")
	require.Error(t, err)
	assert.True(t, entity.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConvertDBError(t *testing.T) {
	assert.NoError(t, ConvertDBError(nil))

	assert.ErrorIs(t, ConvertDBError(sql.ErrNoRows), entity.ErrNotFound)

	err := ConvertDBError(&pgconn.PgError{Code: "23503", Detail: "fk"})
	assert.True(t, IsForeignKeyViolation(err))

	err = ConvertDBError(&pgconn.PgError{Code: "23502", ColumnName: "title"})
	assert.ErrorIs(t, err, ErrNotNullViolation)

	err = ConvertDBError(sqlite3.Error{
		Code:         sqlite3.ErrConstraint,
		ExtendedCode: sqlite3.ErrConstraintUnique,
	})
	assert.True(t, IsUniqueViolation(err))

	plain := errors.New("network down")
	assert.Same(t, plain, ConvertDBError(plain))
}
