// internal/api/handler/web/handler.go
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"os"

	"github.com/newthinker/candlescope/internal/api/response"
	"github.com/newthinker/candlescope/internal/boundary"
	"github.com/newthinker/candlescope/internal/classify"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/fetch"
	"github.com/newthinker/candlescope/internal/table"
	"go.uber.org/zap"
)

//go:embed templates/*
var templateFS embed.FS

// pages are rendered inside layout.html. Standalone pages have no layout.
var (
	pages      = []string{"landing.html", "dashboard.html"}
	standalone = []string{"chart_fallback.html"}
)

// Browser provides the aggregated pattern list and the configured symbols.
type Browser interface {
	Patterns(ctx context.Context) ([]core.Pattern, error)
	Symbols() []string
}

// Deps are the data sources behind the views.
type Deps struct {
	Browser  Browser
	Loader   fetch.SymbolLoader
	Charts   *boundary.Set
	PageSize int
	Logger   *zap.Logger
}

// Handler provides web UI handlers with template rendering
type Handler struct {
	// pageTemplates holds one template set per page: layout.html plus the
	// page itself, so "content" is defined exactly once in each.
	pageTemplates map[string]*template.Template

	browser  Browser
	loader   fetch.SymbolLoader
	charts   *boundary.Set
	pageSize int
	logger   *zap.Logger
}

// NewHandler creates a web handler with templates loaded from templatesDir.
// If templatesDir is empty, it falls back to embedded templates.
func NewHandler(templatesDir string, deps Deps) (*Handler, error) {
	if templatesDir != "" {
		return NewHandlerWithFS(os.DirFS(templatesDir), deps)
	}
	return NewHandlerWithFS(TemplateFS(), deps)
}

// NewHandlerWithFS creates a web handler using a custom filesystem.
func NewHandlerWithFS(fsys fs.FS, deps Deps) (*Handler, error) {
	pageTemplates := make(map[string]*template.Template)

	for _, page := range pages {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(fsys, "layout.html", page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}
	for _, page := range standalone {
		tmpl, err := template.New(page).Funcs(funcs).ParseFS(fsys, page)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", page, err)
		}
		pageTemplates[page] = tmpl
	}

	if deps.PageSize < 1 {
		deps.PageSize = table.DefaultPageSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Charts == nil {
		deps.Charts = boundary.NewSet("chart", deps.Logger, nil)
	}

	return &Handler{
		pageTemplates: pageTemplates,
		browser:       deps.Browser,
		loader:        deps.Loader,
		charts:        deps.Charts,
		pageSize:      deps.PageSize,
		logger:        deps.Logger,
	}, nil
}

// render executes the layout of the specified page with the given data.
func (h *Handler) render(w http.ResponseWriter, status int, page string, data any) {
	h.execute(w, status, page, "layout.html", data)
}

func (h *Handler) execute(w http.ResponseWriter, status int, page, name string, data any) {
	tmpl, ok := h.pageTemplates[page]
	if !ok {
		http.Error(w, "template not found: "+page, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("executing template", zap.String("page", page), zap.Error(err))
	}
}

// ErrorView is the error panel shown in place of data.
type ErrorView struct {
	Code     string
	Message  string
	RetryURL string
}

func errorView(err error, retry string) *ErrorView {
	d := response.Detail(err)
	return &ErrorView{Code: d.Code, Message: d.Message, RetryURL: retry}
}

var funcs = template.FuncMap{
	"percent":         classify.Percent,
	"confidenceColor": classify.ConfidenceColor,
	"confidenceLevel": func(c float64) string { return string(classify.ConfidenceLevelOf(c)) },
	"patternColor":    classify.Color,
	"badgeClass":      classify.BadgeClass,
	"icon":            classify.Icon,
	"sentiment":       func(name string) string { return string(classify.SentimentOf(name)) },
	"formatTimestamp": classify.FormatTimestamp,
	"formatDate":      classify.FormatDate,
	"formatClock":     classify.FormatClock,
	"pathEscape":      url.PathEscape,
}

// TemplateFS returns the embedded template filesystem for external use.
func TemplateFS() fs.FS {
	subFS, err := fs.Sub(templateFS, "templates")
	if err != nil {
		// This should never happen with valid embed directive
		return templateFS
	}
	return subFS
}
