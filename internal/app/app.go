// Package app wires the candlescope components together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/newthinker/candlescope/internal/api"
	"github.com/newthinker/candlescope/internal/boundary"
	"github.com/newthinker/candlescope/internal/browse"
	"github.com/newthinker/candlescope/internal/cache"
	"github.com/newthinker/candlescope/internal/config"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/fetch"
	"github.com/newthinker/candlescope/internal/logger"
	"github.com/newthinker/candlescope/internal/metrics"
	"github.com/newthinker/candlescope/internal/scheduler"
	"github.com/newthinker/candlescope/internal/source"
	apisource "github.com/newthinker/candlescope/internal/source/api"
	"github.com/newthinker/candlescope/internal/source/static"
	"github.com/newthinker/candlescope/internal/storage/kv"
	"go.uber.org/zap"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

// App is the main application orchestrator
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Registry

	sources   *source.Registry
	storage   kv.Storage
	store     *cache.Store
	persist   *cache.Persistent
	loader    *fetch.Loader
	browser   *browse.Aggregator
	charts    *boundary.Set
	scheduler *scheduler.Scheduler
	server    *api.Server

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
}

// Options carries settings that are not part of the config file.
type Options struct {
	TemplatesDir string
}

// New builds every component described by cfg.
func New(cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	log = logger.OrNop(log)

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry()
	}

	a := &App{
		cfg:     cfg,
		logger:  log,
		metrics: reg,
		sources: source.NewRegistry(),
		charts:  boundary.NewSet("chart", logger.Component(log, "boundary"), reg),
	}

	a.store = cache.New(cache.TTLs{
		Candles:  cfg.Cache.CandlesTTL,
		Patterns: cfg.Cache.PatternsTTL,
		Browse:   cfg.Cache.BrowseTTL,
	}, cache.WithMetrics(reg))

	var fallback *static.Static
	if cfg.Fallback.Dir != "" {
		fallback = static.NewDir(cfg.Fallback.Dir)
		a.sources.Register(fallback)
	}
	a.sources.Register(apisource.New(apisource.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		Burst:     cfg.API.Burst,
	}, apisource.WithMetrics(reg), apisource.WithLogger(logger.Component(log, "upstream"))))

	primary, ok := a.sources.Get(cfg.Source.Type)
	if !ok {
		return nil, core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("source %q not available (have %v)", cfg.Source.Type, a.sources.Names()))
	}

	storage, err := kv.New(kv.Config{
		Type: cfg.Persist.Type,
		Path: cfg.Persist.Path,
		S3: kv.S3Config{
			Bucket:    cfg.Persist.S3.Bucket,
			Endpoint:  cfg.Persist.S3.Endpoint,
			Region:    cfg.Persist.S3.Region,
			AccessKey: cfg.Persist.S3.AccessKey,
			SecretKey: cfg.Persist.S3.SecretKey,
			Prefix:    cfg.Persist.S3.Prefix,
		},
		Redis: kv.RedisConfig{
			Addr:     cfg.Persist.Redis.Addr,
			Password: cfg.Persist.Redis.Password,
			DB:       cfg.Persist.Redis.DB,
			Prefix:   cfg.Persist.Redis.Prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating persistent storage: %w", err)
	}
	a.storage = storage
	a.persist = cache.NewPersistent(storage, cfg.Cache.BrowseTTL, logger.Component(log, "persist"))

	a.loader = fetch.NewLoader(primary, a.store, reg, logger.Component(log, "loader"))
	a.loader.SetAliases(cfg.Aliases)

	deps := browse.Deps{
		Source:  primary,
		Store:   a.store,
		Persist: a.persist,
		Metrics: reg,
		Logger:  logger.Component(log, "browse"),
	}
	if fallback != nil {
		deps.Fallback = fallback
	}
	a.browser = browse.NewAggregator(cfg.Symbols, deps)

	a.scheduler = scheduler.New(scheduler.Jobs{
		Memory:  a.store,
		Persist: a.persist,
		Warm:    a.browser,
	}, logger.Component(log, "scheduler"))
	if err := a.scheduler.Register(cfg.Cache.CleanupSchedule, cfg.Cache.WarmSchedule); err != nil {
		a.closeStorage()
		return nil, err
	}

	a.server, err = api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		APIKey:       cfg.Server.APIKey,
		PageSize:     cfg.Server.PageSize,
		TemplatesDir: opts.TemplatesDir,
		MetricsPath:  cfg.Metrics.Path,
	}, api.Dependencies{
		Loader:  a.loader,
		Browser: a.browser,
		Store:   a.store,
		Persist: a.persist,
		Metrics: reg,
		Charts:  a.charts,
	}, log)
	if err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("creating server: %w", err)
	}

	log.Info("candlescope configured",
		zap.String("source", primary.Name()),
		zap.Strings("symbols", a.browser.Symbols()),
		zap.Bool("persist", a.persist.Enabled()),
		zap.Bool("metrics", reg != nil),
	)

	return a, nil
}

// Start serves HTTP and runs the scheduled jobs until ctx is cancelled or the
// server fails.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	a.scheduler.Start()
	defer a.scheduler.Stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.server.Start()
	}()

	select {
	case err := <-serverErr:
		cancel()
		if err == nil {
			err = errors.New("server stopped unexpectedly")
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("candlescope shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	<-serverErr

	return ctx.Err()
}

// Stop cancels a running Start.
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// Close releases backend connections. Call it once Start has returned.
func (a *App) Close() error {
	return a.closeStorage()
}

func (a *App) closeStorage() error {
	if c, ok := a.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// ApplyConfig applies the settings that can change without a restart: the
// browsed symbols and the alias table. Everything else is logged and kept.
func (a *App) ApplyConfig(ctx context.Context, cfg *config.Config) {
	a.mu.Lock()
	prev := a.cfg
	a.cfg = cfg
	a.mu.Unlock()

	if !slices.Equal(prev.Symbols, cfg.Symbols) {
		a.browser.SetSymbols(ctx, cfg.Symbols)
		a.logger.Info("symbols updated", zap.Strings("symbols", a.browser.Symbols()))
	}
	a.loader.SetAliases(cfg.Aliases)

	if prev.Server != cfg.Server || prev.Source != cfg.Source || prev.API != cfg.API ||
		prev.Persist != cfg.Persist || prev.Cache != cfg.Cache || prev.Metrics != cfg.Metrics ||
		prev.Fallback != cfg.Fallback {
		a.logger.Warn("some configuration changes take effect after a restart")
	}
}

// Browser returns the cross-symbol aggregator.
func (a *App) Browser() *browse.Aggregator {
	return a.browser
}

// Loader returns the per-symbol loader.
func (a *App) Loader() *fetch.Loader {
	return a.loader
}

// Server returns the HTTP server.
func (a *App) Server() *api.Server {
	return a.server
}

// Scheduler returns the maintenance scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return map[string]any{
		"running":   a.running,
		"source":    a.cfg.Source.Type,
		"sources":   a.sources.Names(),
		"symbols":   len(a.browser.Symbols()),
		"scheduled": a.scheduler.Entries(),
		"persist":   a.persist.Enabled(),
		"cache":     a.store.Stats(),
	}
}
