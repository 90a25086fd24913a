// Package api talks to the remote pattern-detection API.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	endpointCandles  = "ohlcv"
	endpointPatterns = "patterns"

	// maxBodySize caps how much of a response is read.
	maxBodySize = 32 << 20
)

// Config configures the API client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64 // requests per second, 0 disables
	Burst     int
}

// Client implements source.Source against GET {base}/api/ohlcv/{symbol} and
// GET {base}/api/patterns/{symbol}.
type Client struct {
	base    string
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.Registry
	logger  *zap.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithMetrics records upstream calls in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(c *Client) { c.metrics = reg }
}

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a client for the API at cfg.BaseURL.
func New(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{Timeout: timeout},
		logger: zap.NewNop(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return "api"
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// FetchCandles fetches the OHLCV series for symbol.
func (c *Client) FetchCandles(ctx context.Context, symbol string) ([]byte, error) {
	return c.get(ctx, endpointCandles, symbol)
}

// FetchPatterns fetches the detected patterns for symbol.
func (c *Client) FetchPatterns(ctx context.Context, symbol string) ([]byte, error) {
	return c.get(ctx, endpointPatterns, symbol)
}

func (c *Client) get(ctx context.Context, endpoint, symbol string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("rate limiter: %w", err))
		}
	}

	u := fmt.Sprintf("%s/api/%s/%s", c.base, endpoint, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(endpoint, 0)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("GET %s: %w", u, err))
	}
	defer resp.Body.Close()
	c.metrics.RecordUpstream(endpoint, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Debug("upstream error status",
			zap.String("endpoint", endpoint),
			zap.String("symbol", symbol),
			zap.Int("status", resp.StatusCode))
		return nil, core.WrapError(core.ErrUpstreamStatus, &StatusError{Endpoint: endpoint, Code: resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, core.WrapError(core.ErrUpstreamUnavailable, fmt.Errorf("reading %s body: %w", endpoint, err))
	}
	return body, nil
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Endpoint string
	Code     int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s endpoint returned HTTP %d", e.Endpoint, e.Code)
}
