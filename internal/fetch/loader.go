// Package fetch loads a symbol's candles and patterns through the cache and
// keeps per-connection load state.
package fetch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/candlescope/internal/cache"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/metrics"
	"github.com/newthinker/candlescope/internal/payload"
	"github.com/newthinker/candlescope/internal/source"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Result is a validated candle series with the patterns placed on it.
type Result struct {
	Symbol    string         `json:"symbol"`
	Candles   []core.Candle  `json:"candles"`
	Patterns  []core.Pattern `json:"patterns"`
	FromCache bool           `json:"fromCache"`
}

// SymbolLoader is what a Session needs from a Loader.
type SymbolLoader interface {
	Load(ctx context.Context, symbol string) (Result, error)
}

// Loader serves symbol loads from the cache, falling back to the source.
// Concurrent loads of one symbol share a single upstream request pair.
type Loader struct {
	source  source.Source
	cache   *cache.Store
	metrics *metrics.Registry
	logger  *zap.Logger

	mu      sync.RWMutex
	aliases map[string]string

	group singleflight.Group
}

// NewLoader creates a loader.
func NewLoader(src source.Source, store *cache.Store, reg *metrics.Registry, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		source:  src,
		cache:   store,
		metrics: reg,
		logger:  logger,
		aliases: map[string]string{},
	}
}

// SetAliases replaces the symbol alias map. Keys and values are
// case-insensitive.
func (l *Loader) SetAliases(aliases map[string]string) {
	normalised := make(map[string]string, len(aliases))
	for from, to := range aliases {
		normalised[normalise(from)] = normalise(to)
	}
	l.mu.Lock()
	l.aliases = normalised
	l.mu.Unlock()
}

// Resolve normalises symbol and applies the alias map.
func (l *Loader) Resolve(symbol string) string {
	s := normalise(symbol)
	l.mu.RLock()
	defer l.mu.RUnlock()
	if to, ok := l.aliases[s]; ok && to != "" {
		return to
	}
	return s
}

func normalise(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Load returns the candles and placed patterns for symbol. Cancellation of
// ctx is reported as the context error itself.
func (l *Loader) Load(ctx context.Context, symbol string) (Result, error) {
	start := time.Now()
	sym := l.Resolve(symbol)
	if sym == "" {
		return Result{}, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("empty symbol"))
	}

	if res, ok := l.cached(sym); ok {
		l.metrics.RecordLoad("cache", time.Since(start).Seconds())
		return res, nil
	}

	// The shared fetch outlives any single caller so that one cancelled
	// caller does not fail the others; the HTTP client timeout bounds it.
	ch := l.group.DoChan(sym, func() (any, error) {
		return l.fetch(context.WithoutCancel(ctx), sym)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			l.logger.Debug("load failed", zap.String("symbol", sym), zap.Error(r.Err))
			return Result{}, r.Err
		}
		l.metrics.RecordLoad("upstream", time.Since(start).Seconds())
		return r.Val.(Result), nil
	}
}

func (l *Loader) cached(sym string) (Result, bool) {
	candles, ok := l.cache.Candles(sym)
	if !ok {
		return Result{}, false
	}
	patterns, ok := l.cache.Patterns(sym)
	if !ok {
		return Result{}, false
	}
	return Result{Symbol: sym, Candles: candles, Patterns: patterns, FromCache: true}, true
}

func (l *Loader) fetch(ctx context.Context, sym string) (Result, error) {
	var rawCandles, rawPatterns []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawCandles, err = l.source.FetchCandles(gctx, sym)
		return err
	})
	g.Go(func() error {
		var err error
		rawPatterns, err = l.source.FetchPatterns(gctx, sym)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	candles, err := payload.Candles(rawCandles)
	if err != nil {
		return Result{}, err
	}
	patterns, err := payload.Patterns(rawPatterns, sym)
	if err != nil {
		return Result{}, err
	}
	placed := payload.Place(patterns, candles)
	if dropped := len(patterns) - len(placed); dropped > 0 {
		l.logger.Debug("dropped unplaceable patterns",
			zap.String("symbol", sym),
			zap.Int("dropped", dropped))
	}

	l.cache.Set(cache.KindCandles, sym, candles)
	l.cache.Set(cache.KindPatterns, sym, placed)

	return Result{Symbol: sym, Candles: candles, Patterns: placed}, nil
}
