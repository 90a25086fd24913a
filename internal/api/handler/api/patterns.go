// internal/api/handler/api/patterns.go
package api

import (
	"context"
	"net/http"

	"github.com/newthinker/candlescope/internal/api/response"
	"github.com/newthinker/candlescope/internal/browse"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/table"
)

// PatternBrowser provides the aggregated pattern list.
type PatternBrowser interface {
	Patterns(ctx context.Context) ([]core.Pattern, error)
}

// PatternsHandler serves the aggregated pattern list.
type PatternsHandler struct {
	browser  PatternBrowser
	pageSize int
}

// NewPatternsHandler creates a patterns handler.
func NewPatternsHandler(browser PatternBrowser, pageSize int) *PatternsHandler {
	if pageSize < 1 {
		pageSize = table.DefaultPageSize
	}
	return &PatternsHandler{browser: browser, pageSize: pageSize}
}

// PatternList is the body of a list response.
type PatternList struct {
	Patterns []core.Pattern `json:"patterns"`
	Options  browse.Options `json:"options"`
	Stats    browse.Stats   `json:"stats"`
	Filter   browse.Filter  `json:"filter"`
}

// List handles GET /api/v1/patterns?symbol=&pattern=&timeframe=&sort=&dir=&page=&page_size=
func (h *PatternsHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.browser.Patterns(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		response.Fail(w, err)
		return
	}

	q := r.URL.Query()
	filter := browse.ParseFilter(q)
	filtered := filter.Apply(all)

	state := table.FromQuery(q, h.pageSize)
	page := state.Apply(filtered)

	response.Paged(w, PatternList{
		Patterns: page.Items,
		Options:  browse.OptionsOf(all),
		Stats:    browse.StatsOf(filtered),
		Filter:   filter,
	}, response.Paging{
		Page:       page.Number,
		PageSize:   page.Size,
		Total:      page.Total,
		TotalPages: page.TotalPages,
	})
}
