package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-api/strata/pkg/config"
	"github.com/strata-api/strata/pkg/entity"
	"github.com/strata-api/strata/pkg/web/cache"
)

// testConfig keeps everything in-process: in-memory SQLite on a single
// connection, quiet logging, fast scheduler ticks.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 3000},
		Database: config.DatabaseConfig{
			Driver:       "sqlite3",
			URL:          ":memory:",
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
		Cache:     config.CacheConfig{Backend: "memory", TTL: time.Minute},
		Log:       config.LogConfig{Level: "error", Format: "json"},
		Scheduler: config.SchedulerConfig{Tick: 10 * time.Millisecond},
	}
}

func noteDef(services ...entity.ServiceMethod) entity.Definition {
	return entity.Definition{
		Name: "Note",
		Fields: []entity.Field{
			{Name: "title", Type: entity.TypeString},
			{Name: "views", Type: entity.TypeInt, Default: 0},
		},
		Services: services,
	}
}

func newTestApp(t *testing.T, cfg *config.Config, defs ...entity.Definition) *App {
	t.Helper()

	reg := entity.NewRegistry()
	for _, def := range defs {
		_, err := reg.Register(def)
		require.NoError(t, err)
	}

	a, err := New(context.Background(), cfg, reg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Stop(context.Background()) })
	return a
}

func doJSON(t *testing.T, method, url string, body interface{}) (int, interface{}, http.Header) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded interface{}
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &decoded), "body: %s", data)
	}
	return resp.StatusCode, decoded, resp.Header
}

func record(t *testing.T, v interface{}) map[string]interface{} {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok, "expected an object, got %T", v)
	return m
}

func TestAppServesCRUD(t *testing.T) {
	a := newTestApp(t, testConfig(), noteDef())
	require.NoError(t, a.Start(context.Background()))

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	status, body, header := doJSON(t, http.MethodPost, srv.URL+"/note", map[string]interface{}{
		"title": "hello",
	})
	require.Equal(t, http.StatusCreated, status)
	created := record(t, body)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "hello", created["title"])
	assert.Equal(t, float64(0), created["views"])
	assert.NotEmpty(t, header.Get("X-Request-ID"))

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/note/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", record(t, body)["title"])

	status, body, _ = doJSON(t, http.MethodPatch, srv.URL+"/note/"+id, map[string]interface{}{
		"title": "renamed",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "renamed", record(t, body)["title"])

	status, body, _ = doJSON(t, http.MethodDelete, srv.URL+"/note/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, record(t, body)["ok"])

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/note/"+id, nil)
	require.Equal(t, http.StatusNotFound, status)
	errObj := record(t, record(t, body)["error"])
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestAppHealthzAndMetrics(t *testing.T) {
	a := newTestApp(t, testConfig(), noteDef())
	require.NoError(t, a.Start(context.Background()))

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", record(t, body)["status"])

	// One entity request so the counters have something to report.
	doJSON(t, http.MethodGet, srv.URL+"/note", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), "strata_requests_total")
}

func TestAppSeedAndSessionFallback(t *testing.T) {
	seeded := func(ctx context.Context, rt entity.Runtime) error {
		e, _ := rt.Registry().Lookup("Note")
		_, err := e.CreateRecord(ctx, rt.Session(ctx), entity.Record{"title": "from seed"})
		return err
	}
	a := newTestApp(t, testConfig(), noteDef(entity.ServiceMethod{
		Name: "seed_notes", Seed: true, Handler: seeded,
	}))
	require.NoError(t, a.Start(context.Background()))

	// Outside a request the app hands out one shared fallback session.
	ctx := context.Background()
	s1 := a.Session(ctx)
	s2 := a.Session(ctx)
	assert.Same(t, s1, s2)

	// Release the fallback session's read transaction so request sessions
	// can use the single test connection.
	require.NoError(t, s1.Commit(ctx))

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	status, body, _ := doJSON(t, http.MethodGet, srv.URL+"/note", nil)
	require.Equal(t, http.StatusOK, status)
	list, ok := body.([]interface{})
	require.True(t, ok, "expected a list, got %T", body)
	require.Len(t, list, 1)
	assert.Equal(t, "from seed", record(t, list[0])["title"])
}

func TestAppIntervalServiceRuns(t *testing.T) {
	var runs atomic.Int32
	a := newTestApp(t, testConfig(), noteDef(entity.ServiceMethod{
		Name:     "tick",
		Interval: 20 * time.Millisecond,
		Handler: func(ctx context.Context, rt entity.Runtime) error {
			runs.Add(1)
			return nil
		},
	}))
	require.NoError(t, a.Start(context.Background()))

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	jobs := a.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "Note", jobs[0].Entity)
	assert.Equal(t, "tick", jobs[0].Method)
	assert.Eventually(t, func() bool {
		js := a.Jobs()
		return len(js) == 1 && !js[0].LastExecuted.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	a.Stop(context.Background())
	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}

func TestAppStartupFailure(t *testing.T) {
	a := newTestApp(t, testConfig(), noteDef(entity.ServiceMethod{
		Name:    "boom",
		Startup: true,
		Handler: func(ctx context.Context, rt entity.Runtime) error {
			return io.ErrUnexpectedEOF
		},
	}))

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "startup Note.boom")

	// Stop after a failed start is fine.
	a.Stop(context.Background())
}

func TestAppMemoryCacheReadThrough(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = true
	a := newTestApp(t, cfg, noteDef())
	require.NoError(t, a.Start(context.Background()))

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	status, body, _ := doJSON(t, http.MethodPost, srv.URL+"/note", map[string]interface{}{
		"title": "cached",
	})
	require.Equal(t, http.StatusCreated, status)
	id, _ := record(t, body)["id"].(string)

	// Plant a divergent entry to prove reads come from the cache.
	planted, err := json.Marshal(entity.Record{"id": id, "title": "from cache"})
	require.NoError(t, err)
	require.NoError(t, a.cache.Set(context.Background(), cache.RecordKey("Note", id), planted, time.Minute))

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/note/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "from cache", record(t, body)["title"])
}

func TestAppRedisCache(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()

	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Backend = "redis"
	cfg.Cache.Redis.Addr = mini.Addr()

	a := newTestApp(t, cfg, noteDef())
	require.NoError(t, a.Start(context.Background()))

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	status, body, _ := doJSON(t, http.MethodPost, srv.URL+"/note", map[string]interface{}{
		"title": "stored in redis",
	})
	require.Equal(t, http.StatusCreated, status)
	id, _ := record(t, body)["id"].(string)

	assert.True(t, mini.Exists("strata:Note:"+id), "create should prime the redis cache")

	status, body, _ = doJSON(t, http.MethodGet, srv.URL+"/note/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "stored in redis", record(t, body)["title"])

	status, _, _ = doJSON(t, http.MethodDelete, srv.URL+"/note/"+id, nil)
	require.Equal(t, http.StatusOK, status)
	assert.False(t, mini.Exists("strata:Note:"+id), "delete should drop the cached record")
}

func TestGateQueuing(t *testing.T) {
	a1 := newTestApp(t, testConfig(), noteDef())
	a2 := newTestApp(t, testConfig(), noteDef())

	release1, err := a1.MakeCurrent(context.Background())
	require.NoError(t, err)
	assert.Same(t, a1, Current())

	// A bounded wait gives up with the context's error.
	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = a2.MakeCurrent(shortCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Same(t, a1, Current())

	// A patient waiter acquires as soon as the holder releases.
	acquired := make(chan func(), 1)
	go func() {
		release2, err := a2.MakeCurrent(context.Background())
		if err != nil {
			close(acquired)
			return
		}
		acquired <- release2
	}()

	time.Sleep(20 * time.Millisecond)
	release1()
	release1() // idempotent

	select {
	case release2, ok := <-acquired:
		require.True(t, ok, "waiter failed to acquire")
		assert.Same(t, a2, Current())
		release2()
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the gate")
	}
	assert.Nil(t, Current())
}

func TestBuildLoggerRejectsBadLevel(t *testing.T) {
	_, _, err := buildLogger(config.LogConfig{Level: "shrieking", Format: "json"})
	require.Error(t, err)
}
