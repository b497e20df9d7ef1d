package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-api/strata/pkg/entity"
)

func seedArticles(t *testing.T, st *Store, e *entity.Entity, n int) []string {
	t.Helper()
	sess := st.Session()
	defer sess.Close()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rec, err := e.CreateRecord(context.Background(), sess, entity.Record{
			"title":     fmt.Sprintf("post %d", i),
			"views":     float64(i * 10),
			"published": i%2 == 0,
		})
		require.NoError(t, err)
		ids = append(ids, rec["id"].(string))
	}
	require.NoError(t, sess.Commit(context.Background()))
	return ids
}

func TestQueryWhere(t *testing.T) {
	st := openTestStore(t)
	reg, e := articleEntity(t)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx, reg))
	seedArticles(t, st, e, 5)

	sess := st.Session()
	defer sess.Close()

	recs, err := sess.Query(e).Where("title", "=", "post 2").All(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(20), recs[0]["views"])

	recs, err = sess.Query(e).Where("views", ">=", int64(30)).All(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = sess.Query(e).
		Where("published", "=", true).
		Where("views", ">", int64(0)).
		All(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2, "conditions combine with AND")
}

func TestQueryWhereIn(t *testing.T) {
	st := openTestStore(t)
	reg, e := articleEntity(t)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx, reg))
	ids := seedArticles(t, st, e, 4)

	sess := st.Session()
	defer sess.Close()

	recs, err := sess.Query(e).WhereIn("id", []interface{}{ids[0], ids[2]}).All(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = sess.Query(e).WhereIn("id", nil).All(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs, "empty membership matches nothing")
}

func TestQueryPagination(t *testing.T) {
	st := openTestStore(t)
	reg, e := articleEntity(t)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx, reg))
	seedArticles(t, st, e, 5)

	sess := st.Session()
	defer sess.Close()

	all, err := e.GetAll(ctx, sess, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	pageOne, err := e.GetAll(ctx, sess, 0, 2)
	require.NoError(t, err)
	require.Len(t, pageOne, 2)

	rest, err := e.GetAll(ctx, sess, 2, 0)
	require.NoError(t, err)
	require.Len(t, rest, 3)

	seen := make(map[string]struct{})
	for _, rec := range append(pageOne, rest...) {
		id := rec["id"].(string)
		_, dup := seen[id]
		assert.False(t, dup, "pages overlap on %s", id)
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 5)
}

func TestQueryCountIgnoresPaging(t *testing.T) {
	st := openTestStore(t)
	reg, e := articleEntity(t)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx, reg))
	seedArticles(t, st, e, 5)

	sess := st.Session()
	defer sess.Close()

	count, err := sess.Query(e).Limit(2).Offset(1).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	count, err = sess.Query(e).Where("published", "=", true).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestQueryFirst(t *testing.T) {
	st := openTestStore(t)
	reg, e := articleEntity(t)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx, reg))
	seedArticles(t, st, e, 3)

	sess := st.Session()
	defer sess.Close()

	rec, err := sess.Query(e).Where("title", "=", "post 1").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "post 1", rec["title"])

	_, err = sess.Query(e).Where("title", "=", "missing").First(ctx)
	require.Error(t, err)
	assert.True(t, entity.IsNotFound(err))
}

func TestQueryBuilderErrors(t *testing.T) {
	st := openTestStore(t)
	reg, e := articleEntity(t)
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx, reg))

	sess := st.Session()
	defer sess.Close()

	_, err := sess.Query(e).Where("title", "~=", "x").All(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported operator")

	_, err = sess.Query(e).Where("ghost", "=", "x").All(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")

	_, err = sess.Query(e).WhereIn("ghost", []interface{}{"x"}).Count(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
