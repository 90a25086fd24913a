// internal/api/handler/api/symbols.go
package api

import (
	"fmt"
	"net/http"

	"github.com/newthinker/candlescope/internal/api/response"
	"github.com/newthinker/candlescope/internal/browse"
	"github.com/newthinker/candlescope/internal/chart"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/fetch"
)

// SymbolsHandler serves per-symbol candles, patterns and highlights.
type SymbolsHandler struct {
	loader fetch.SymbolLoader
}

// NewSymbolsHandler creates a symbols handler.
func NewSymbolsHandler(loader fetch.SymbolLoader) *SymbolsHandler {
	return &SymbolsHandler{loader: loader}
}

// SymbolData is the body of a symbol response.
type SymbolData struct {
	fetch.Result
	Stats browse.Stats `json:"stats"`
}

// Get handles GET /api/v1/symbols/{symbol}
func (h *SymbolsHandler) Get(w http.ResponseWriter, r *http.Request, symbol string) {
	res, err := h.loader.Load(r.Context(), symbol)
	if err != nil {
		// The client went away; nobody is listening for an answer.
		if r.Context().Err() != nil {
			return
		}
		response.Fail(w, err)
		return
	}

	response.JSON(w, http.StatusOK, SymbolData{
		Result: res,
		Stats:  browse.StatsOf(res.Patterns),
	})
}

// Highlight handles GET /api/v1/symbols/{symbol}/highlight?pattern=<id>
func (h *SymbolsHandler) Highlight(w http.ResponseWriter, r *http.Request, symbol string) {
	id := r.URL.Query().Get("pattern")
	if id == "" {
		response.Error(w, http.StatusBadRequest,
			core.WrapError(core.ErrPatternNotFound, fmt.Errorf("pattern query parameter required")))
		return
	}

	res, err := h.loader.Load(r.Context(), symbol)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		response.Fail(w, err)
		return
	}

	a, err := Annotate(res, id)
	if err != nil {
		response.Fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}

// Annotate builds the highlight for pattern id within res.
func Annotate(res fetch.Result, id string) (chart.Annotation, error) {
	a, ok := chart.HighlightByID(res.Patterns, res.Candles, id)
	if !ok {
		return chart.Annotation{}, core.WrapError(core.ErrPatternNotFound,
			fmt.Errorf("pattern %q not placed for %s", id, res.Symbol))
	}
	return a, nil
}
