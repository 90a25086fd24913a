// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apihandler "github.com/newthinker/candlescope/internal/api/handler/api"
	"github.com/newthinker/candlescope/internal/api/handler/stream"
	"github.com/newthinker/candlescope/internal/api/handler/web"
	"github.com/newthinker/candlescope/internal/api/middleware"
	"github.com/newthinker/candlescope/internal/boundary"
	"github.com/newthinker/candlescope/internal/cache"
	"github.com/newthinker/candlescope/internal/fetch"
	"github.com/newthinker/candlescope/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP server for candlescope
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
}

// Config holds server configuration
type Config struct {
	Host         string
	Port         int
	APIKey       string
	PageSize     int
	TemplatesDir string
	MetricsPath  string
}

// Dependencies holds the services behind the routes.
type Dependencies struct {
	Loader  fetch.SymbolLoader
	Browser web.Browser
	Store   *cache.Store
	Persist *cache.Persistent
	Metrics *metrics.Registry
	Charts  *boundary.Set
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger: logger,
		mux:    mux,
	}

	if err := s.setupRoutes(cfg, deps); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	handler := middleware.Chain(mux,
		metrics.LoggingMiddleware(logger),
		middleware.Recover(logger),
	)
	if deps.Metrics != nil {
		handler = metrics.HTTPMiddleware(deps.Metrics)(handler)
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config, deps Dependencies) error {
	charts := deps.Charts
	if charts == nil {
		charts = boundary.NewSet("chart", s.logger, deps.Metrics)
	}

	// Web UI routes
	webHandler, err := web.NewHandler(cfg.TemplatesDir, web.Deps{
		Browser:  deps.Browser,
		Loader:   deps.Loader,
		Charts:   charts,
		PageSize: cfg.PageSize,
		Logger:   s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating web handler: %w", err)
	}

	s.mux.HandleFunc("GET /{$}", webHandler.Landing)
	s.mux.HandleFunc("GET /symbols", webHandler.SymbolRedirect)
	s.mux.HandleFunc("GET /symbols/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		webHandler.Dashboard(w, r, r.PathValue("symbol"))
	})
	s.mux.HandleFunc("GET /chart/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		webHandler.Chart(w, r, r.PathValue("symbol"))
	})

	// JSON API routes
	patterns := apihandler.NewPatternsHandler(deps.Browser, cfg.PageSize)
	symbols := apihandler.NewSymbolsHandler(deps.Loader)

	s.mux.HandleFunc("GET /api/v1/patterns", patterns.List)
	s.mux.HandleFunc("GET /api/v1/symbols/{symbol}", func(w http.ResponseWriter, r *http.Request) {
		symbols.Get(w, r, r.PathValue("symbol"))
	})
	s.mux.HandleFunc("GET /api/v1/symbols/{symbol}/highlight", func(w http.ResponseWriter, r *http.Request) {
		symbols.Highlight(w, r, r.PathValue("symbol"))
	})

	// Cache administration requires the API key when one is configured
	admin := middleware.APIKeyAuth(cfg.APIKey)
	cacheHandler := apihandler.NewCacheHandler(deps.Store, deps.Persist, s.logger)
	s.mux.Handle("GET /api/v1/cache/stats", admin(http.HandlerFunc(cacheHandler.Stats)))
	s.mux.Handle("POST /api/v1/cache/clear", admin(http.HandlerFunc(cacheHandler.Clear)))
	s.mux.Handle("POST /api/v1/cache/cleanup", admin(http.HandlerFunc(cacheHandler.Cleanup)))

	// Live dashboard sessions
	s.mux.Handle("GET /ws/dashboard", stream.NewHandler(deps.Loader, deps.Metrics, s.logger))

	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if deps.Metrics != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.mux.Handle("GET "+path, promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	return nil
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
