// Package browse aggregates detected patterns across the configured symbols
// for the landing view.
package browse

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/newthinker/candlescope/internal/cache"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/metrics"
	"github.com/newthinker/candlescope/internal/payload"
	"github.com/newthinker/candlescope/internal/source"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// maxConcurrent bounds parallel per-symbol requests.
const maxConcurrent = 4

var browseKey = cache.Key(cache.KindBrowse, cache.BrowseKey)

// Aggregator builds the cross-symbol pattern list. A symbol that fails to
// load contributes nothing; only a total failure with no fallback is an
// error.
type Aggregator struct {
	source   source.Source
	fallback source.Catalog
	store    *cache.Store
	persist  *cache.Persistent
	metrics  *metrics.Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	symbols []string
	gen     uint64 // bumped by SetSymbols

	// writeMu orders cache writes of a finished collect against SetSymbols.
	writeMu sync.Mutex
	group   singleflight.Group
}

// Deps bundles the collaborators of an Aggregator. Fallback and Persist may
// be nil.
type Deps struct {
	Source   source.Source
	Fallback source.Catalog
	Store    *cache.Store
	Persist  *cache.Persistent
	Metrics  *metrics.Registry
	Logger   *zap.Logger
}

// NewAggregator creates an aggregator over symbols.
func NewAggregator(symbols []string, deps Deps) *Aggregator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Aggregator{
		source:   deps.Source,
		fallback: deps.Fallback,
		store:    deps.Store,
		persist:  deps.Persist,
		metrics:  deps.Metrics,
		logger:   logger,
	}
	a.symbols = normaliseSymbols(symbols)
	return a
}

func normaliseSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Symbols returns the configured symbols.
func (a *Aggregator) Symbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.symbols...)
}

// SetSymbols replaces the symbol list and drops the cached aggregate. A
// collect still running for the previous list finishes for its own callers
// but no longer writes to the caches.
func (a *Aggregator) SetSymbols(ctx context.Context, symbols []string) {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.mu.Lock()
	a.symbols = normaliseSymbols(symbols)
	a.gen++
	a.mu.Unlock()

	a.store.Delete(cache.KindBrowse, cache.BrowseKey)
	if err := a.persist.Delete(ctx, browseKey); err != nil {
		a.logger.Warn("dropping persisted browse list", zap.Error(err))
	}
}

// Patterns returns the aggregated list, from memory, the persistent store or
// a fresh fetch in that order.
func (a *Aggregator) Patterns(ctx context.Context) ([]core.Pattern, error) {
	if ps, ok := a.store.Browse(); ok {
		return ps, nil
	}
	if ps, ok := a.persist.LoadPatterns(ctx, browseKey); ok {
		a.store.Set(cache.KindBrowse, cache.BrowseKey, ps)
		return ps, nil
	}
	return a.Refresh(ctx)
}

// Refresh rebuilds the list from the source, bypassing caches. Concurrent
// refreshes of the same symbol list share one collect.
func (a *Aggregator) Refresh(ctx context.Context) ([]core.Pattern, error) {
	a.mu.RLock()
	symbols := append([]string(nil), a.symbols...)
	gen := a.gen
	a.mu.RUnlock()

	key := fmt.Sprintf("%s#%d", browseKey, gen)
	ch := a.group.DoChan(key, func() (any, error) {
		return a.collect(context.WithoutCancel(ctx), symbols, gen)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]core.Pattern), nil
	}
}

func (a *Aggregator) collect(ctx context.Context, symbols []string, gen uint64) ([]core.Pattern, error) {
	perSymbol := make([][]core.Pattern, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for i, sym := range symbols {
		g.Go(func() error {
			ps, err := a.fetchSymbol(gctx, sym)
			if err != nil {
				a.logger.Warn("skipping symbol", zap.String("symbol", sym), zap.Error(err))
				a.metrics.RecordBrowseFailure(sym)
				return nil
			}
			perSymbol[i] = ps
			return nil
		})
	}
	_ = g.Wait()

	var all []core.Pattern
	for _, ps := range perSymbol {
		all = append(all, ps...)
	}

	if len(all) == 0 {
		fallback, err := a.fromFallback(ctx)
		if err != nil {
			return nil, core.WrapError(core.ErrNoData, err)
		}
		a.logger.Info("using fallback patterns", zap.Int("count", len(fallback)))
		all = fallback
	}
	if all == nil {
		all = []core.Pattern{}
	}

	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	if !a.current(gen) {
		a.logger.Debug("symbols changed during collect, not caching", zap.Strings("symbols", symbols))
		return all, nil
	}
	a.store.Set(cache.KindBrowse, cache.BrowseKey, all)
	if err := a.persist.SavePatterns(ctx, browseKey, all); err != nil {
		a.logger.Warn("persisting browse list", zap.Error(err))
	}
	a.metrics.SetBrowsePatterns(len(all))
	return all, nil
}

func (a *Aggregator) current(gen uint64) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gen == gen
}

func (a *Aggregator) fetchSymbol(ctx context.Context, sym string) ([]core.Pattern, error) {
	raw, err := a.source.FetchPatterns(ctx, sym)
	if err != nil {
		return nil, err
	}
	ps, err := payload.Patterns(raw, sym)
	if err != nil {
		return nil, err
	}
	return unresolved(ps), nil
}

func (a *Aggregator) fromFallback(ctx context.Context) ([]core.Pattern, error) {
	if a.fallback == nil {
		return nil, fmt.Errorf("no patterns from any symbol and no fallback configured")
	}
	raw, err := a.fallback.AllPatterns(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading fallback patterns: %w", err)
	}
	ps, err := payload.Patterns(raw, "")
	if err != nil {
		return nil, fmt.Errorf("parsing fallback patterns: %w", err)
	}
	return unresolved(ps), nil
}

// unresolved clears candle indices: browse entries are not tied to a loaded
// series until opened on the dashboard.
func unresolved(ps []core.Pattern) []core.Pattern {
	for i := range ps {
		ps[i].CandleIndex = core.UnresolvedIndex
	}
	return ps
}
