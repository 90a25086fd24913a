package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/newthinker/candlescope/internal/config"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ohlcv"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "patterns.json"), []byte(`[
	  {"company_name":"TCS","pattern":"Hammer","timeframe":"1d","pattern_start_time":"2024-01-02","confidence":0.9}
	]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ohlcv", "TCS.json"), []byte(`[
	  {"timestamp":"2024-01-01","open":10,"high":12,"low":9,"close":11,"volume":100},
	  {"timestamp":"2024-01-02","open":11,"high":15,"low":10,"close":14,"volume":120}
	]`), 0o644))
	return dir
}

func staticConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Source.Type = "static"
	cfg.Fallback.Dir = writeFixtures(t)
	cfg.Symbols = []string{"TCS"}
	return cfg
}

func TestApp_New(t *testing.T) {
	app, err := New(staticConfig(t), nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	stats := app.GetStats()
	assert.Equal(t, false, stats["running"])
	assert.Equal(t, "static", stats["source"])
	assert.Equal(t, []string{"api", "static"}, stats["sources"])
	assert.Equal(t, 1, stats["symbols"])
	assert.Equal(t, 1, stats["scheduled"])
	assert.Equal(t, false, stats["persist"])
}

func TestApp_New_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		code   string
	}{
		{"unknown source", func(c *config.Config) { c.Source.Type = "ftp" }, core.ErrConfigInvalid.Code},
		{"bad schedule", func(c *config.Config) { c.Cache.CleanupSchedule = "sometimes" }, core.ErrConfigInvalid.Code},
		{"unknown persist", func(c *config.Config) { c.Persist.Type = "tape" }, core.ErrConfigInvalid.Code},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := staticConfig(t)
			tt.mutate(cfg)
			_, err := New(cfg, nil, Options{})
			require.Error(t, err)
			var ce *core.Error
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestApp_LocalFSPersist(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Persist.Type = "localfs"
	cfg.Persist.Path = t.TempDir()

	app, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, true, app.GetStats()["persist"])

	ps, err := app.Browser().Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 1)

	entries, err := os.ReadDir(cfg.Persist.Path)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestApp_ServesDashboard(t *testing.T) {
	app, err := New(staticConfig(t), nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	for _, path := range []string{"/", "/api/v1/patterns", "/api/v1/symbols/TCS", "/metrics"} {
		w := httptest.NewRecorder()
		app.Server().Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestApp_MetricsDisabled(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Metrics.Enabled = false

	app, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	w := httptest.NewRecorder()
	app.Server().Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApp_ApplyConfig(t *testing.T) {
	cfg := staticConfig(t)
	app, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	next := *cfg
	next.Symbols = []string{"tcs", "infy"}
	next.Aliases = map[string]string{"tata": "TCS"}
	app.ApplyConfig(context.Background(), &next)

	assert.Equal(t, []string{"TCS", "INFY"}, app.Browser().Symbols())
	assert.Equal(t, "TCS", app.Loader().Resolve("Tata "))
	assert.Equal(t, 2, app.GetStats()["symbols"])
}

func TestApp_StartStop(t *testing.T) {
	app, err := New(staticConfig(t), nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error)
	go func() {
		done <- app.Start(ctx)
	}()

	err = <-done
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	stats := app.GetStats()
	if stats["running"].(bool) {
		t.Error("app should not be running after stop")
	}
}

func TestApp_CannotStartTwice(t *testing.T) {
	app, err := New(staticConfig(t), nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	done := make(chan error, 1)
	go func() {
		done <- app.Start(context.Background())
	}()

	require.Eventually(t, func() bool {
		return app.GetStats()["running"].(bool)
	}, time.Second, 10*time.Millisecond)

	err = app.Start(context.Background())
	if err == nil {
		t.Error("expected error when starting twice")
	}

	app.Stop()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestApp_StartFailsOnBusyPort(t *testing.T) {
	busy := httptest.NewServer(http.NotFoundHandler())
	defer busy.Close()

	cfg := staticConfig(t)
	_, port, err := net.SplitHostPort(busy.Listener.Addr().String())
	require.NoError(t, err)
	cfg.Server.Port, err = strconv.Atoi(port)
	require.NoError(t, err)

	app, err := New(cfg, nil, Options{})
	require.NoError(t, err)
	defer app.Close()

	err = app.Start(context.Background())
	require.Error(t, err)
	assert.False(t, app.GetStats()["running"].(bool))
}
