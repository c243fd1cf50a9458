// internal/app/app_test.go
package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcript-client/internal/common/config"
	"transcript-client/internal/common/errors"
	"transcript-client/internal/common/logger"
	"transcript-client/internal/session"
)

// ==========================
// Test Helper Functions
// ==========================

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/transcript", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("url") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"text":"hi","start":0}]`))
	})
	mux.HandleFunc("/api/auth/upgrade", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("Authorization") != "Bearer T1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid token"}`))
			return
		}
		_, _ = w.Write([]byte(`{"token":"T2","user":{"id":"u1","email":"a@b.c","accountType":"paid"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string, storageCfg config.StorageConfig) *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "transcript-client", Environment: "test"},
		Backend: config.BackendConfig{BaseURL: baseURL, RequestTimeout: 2000},
		Storage: storageCfg,
		Upgrade: config.UpgradeConfig{GuardInFlight: true, AllowedTiers: []string{"free", "paid"}},
		Metrics: config.MetricsConfig{ServiceName: "transcript-client-test"},
	}
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := New(context.Background(), cfg, logger.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// ==========================
// Composition
// ==========================

func TestNew_MemoryDriverEndToEnd(t *testing.T) {
	backend := newBackend(t)
	a := newApp(t, testConfig(backend.URL, config.StorageConfig{Driver: config.DriverMemory}))
	ctx := context.Background()

	entries, err := a.Transcripts.FetchTranscript(ctx, "https://x/watch?v=abc")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = a.Transcripts.FetchTranscript(ctx, "missing")
	assert.EqualError(t, err, "not found")

	require.NoError(t, a.Session.Commit(ctx, "T1", []byte(`{"id":"u1","accountType":"free"}`)))
	require.NoError(t, a.Upgrades.UpgradeWithStoredToken(ctx, "paid"))

	assert.Equal(t, "paid", a.Identity.Current().AccountType)
	token, err := a.Session.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "T2", token)
}

func TestNew_SQLiteRestoresIdentity(t *testing.T) {
	backend := newBackend(t)
	storageCfg := config.StorageConfig{
		Driver: config.DriverSQLite,
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "client.db")},
	}
	ctx := context.Background()

	first, err := New(ctx, testConfig(backend.URL, storageCfg), logger.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, first.Session.Commit(ctx, "T1", []byte(`{"id":"u1","accountType":"free"}`)))
	require.NoError(t, first.Upgrades.UpgradeWithStoredToken(ctx, "paid"))
	require.NoError(t, first.Close())

	second := newApp(t, testConfig(backend.URL, storageCfg))
	current := second.Identity.Current()
	require.NotNil(t, current)
	assert.Equal(t, "paid", current.AccountType)
}

func TestNew_RedisDriver(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	backend := newBackend(t)
	a := newApp(t, testConfig(backend.URL, config.StorageConfig{
		Driver: config.DriverRedis,
		Redis:  config.RedisConfig{Address: mr.Addr(), KeyPrefix: "client:"},
	}))

	require.NoError(t, a.Session.Commit(context.Background(), "T1", []byte(`{"id":"u1"}`)))
	got, err := mr.Get("client:" + session.KeyToken)
	require.NoError(t, err)
	assert.Equal(t, "T1", got)
}

func TestNew_Errors(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))

	_, err = New(context.Background(), testConfig("http://localhost:5002", config.StorageConfig{Driver: "etcd"}), nil)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))

	_, err = New(context.Background(), testConfig("not a url", config.StorageConfig{Driver: config.DriverMemory}), nil)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}

func TestNew_RedisUnreachable(t *testing.T) {
	defer func(attempts int, delay time.Duration) {
		connectAttempts, connectInitialDelay = attempts, delay
	}(connectAttempts, connectInitialDelay)
	connectAttempts, connectInitialDelay = 2, time.Millisecond

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = New(context.Background(), testConfig("http://localhost:5002", config.StorageConfig{
		Driver: config.DriverRedis,
		Redis:  config.RedisConfig{Address: addr},
	}), logger.NewTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Redis connection failed after 2 attempts")
}

// ==========================
// HTTP surface
// ==========================

func TestHandler_HealthReadyMetrics(t *testing.T) {
	backend := newBackend(t)
	a := newApp(t, testConfig(backend.URL, config.StorageConfig{Driver: config.DriverMemory}))
	_, err := a.Transcripts.FetchTranscript(context.Background(), "abc")
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		resp.Body.Close()
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "remote_calls_total"), "prometheus metrics exported")
	assert.True(t, strings.Contains(text, "transcript_fetches"), "otel metrics exported")
}

// ==========================
// Retry
// ==========================

func TestRetryWithBackoff(t *testing.T) {
	log := logger.NewTestLogger(t)

	calls := 0
	err := retryWithBackoff(context.Background(), func() error {
		calls++
		if calls < 3 {
			return assert.AnError
		}
		return nil
	}, 5, time.Millisecond, log, "probe")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryWithBackoff(context.Background(), func() error {
		calls++
		return assert.AnError
	}, 3, time.Millisecond, log, "probe")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls = 0
	err = retryWithBackoff(ctx, func() error {
		calls++
		return assert.AnError
	}, 5, time.Hour, log, "probe")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
