package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_FetchCandles(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"timestamp":"1","open":1,"high":1,"low":1,"close":1,"volume":1}]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/"})
	body, err := c.FetchCandles(context.Background(), "BAJAJ-AUTO")
	require.NoError(t, err)
	assert.Contains(t, string(body), `"timestamp":"1"`)
	assert.Equal(t, "/api/ohlcv/BAJAJ-AUTO", gotPath)
}

func TestClient_FetchPatterns_EscapesSymbol(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.FetchPatterns(context.Background(), "M&M/X")
	require.NoError(t, err)
	assert.Equal(t, "/api/patterns/M&M%2FX", gotPath)
}

func TestClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	_, err := c.FetchCandles(context.Background(), "TCS")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUpstreamStatus))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "ohlcv", se.Endpoint)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	c := New(Config{BaseURL: base, Timeout: time.Second})
	_, err := c.FetchPatterns(context.Background(), "TCS")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUpstreamUnavailable))
}

func TestClient_CancelledContextPassesThrough(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	c := New(Config{BaseURL: srv.URL})

	errCh := make(chan error, 1)
	go func() {
		_, err := c.FetchCandles(ctx, "TCS")
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-errCh
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.False(t, errors.Is(err, core.ErrUpstreamUnavailable))
}

func TestClient_RateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	// One token, refilled every ten seconds: the second call must wait.
	c := New(Config{BaseURL: srv.URL, RateLimit: 0.1, Burst: 1})

	_, err := c.FetchPatterns(context.Background(), "TCS")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchPatterns(ctx, "TCS")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{BaseURL: "http://localhost:5000/"})
	assert.Equal(t, "api", c.Name())
	assert.Equal(t, "http://localhost:5000", c.BaseURL())
	assert.Equal(t, 10*time.Second, c.client.Timeout)
	assert.Nil(t, c.limiter)
}
