// internal/api/handler/web/chart.go
package web

import (
	"io"
	"net/http"
	"net/url"

	"github.com/newthinker/candlescope/internal/api/response"
	"github.com/newthinker/candlescope/internal/chart"
)

// FallbackData holds data for the chart fallback template
type FallbackData struct {
	Title    string
	Message  string
	RetryURL string
}

// Chart renders the candlestick chart of one symbol as a standalone page for
// the dashboard frame. ?pattern= highlights a pattern and ?reset=1 clears a
// tripped boundary. Load failures never touch the boundary.
func (h *Handler) Chart(w http.ResponseWriter, r *http.Request, symbol string) {
	q := r.URL.Query()
	retry := url.Values{"reset": {"1"}}
	if id := q.Get("pattern"); id != "" {
		retry.Set("pattern", id)
	}
	retryURL := "/chart/" + url.PathEscape(symbol) + "?" + retry.Encode()

	res, err := h.loader.Load(r.Context(), symbol)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		d := response.Detail(err)
		h.execute(w, response.StatusOf(err), "chart_fallback.html", "chart_fallback.html",
			FallbackData{Title: d.Code, Message: d.Message, RetryURL: retryURL})
		return
	}

	// Boundaries exist only for symbols that loaded, keyed by the resolved name
	b := h.charts.Get(res.Symbol)
	if q.Get("reset") == "1" {
		b.Reset()
	}

	in := chart.Input{
		Symbol:  res.Symbol,
		Candles: res.Candles,
		Layout:  chart.Layout{Title: res.Symbol},
	}
	if a, ok := chart.HighlightByID(res.Patterns, res.Candles, q.Get("pattern")); ok {
		in.Layout.SetHighlight(&a)
	}

	out := b.Render(func(w io.Writer) error { return chart.Render(w, in) })
	if !out.OK() {
		h.execute(w, http.StatusInternalServerError, "chart_fallback.html", "chart_fallback.html",
			FallbackData{Title: out.Fallback.Title, Message: out.Fallback.Message, RetryURL: retryURL})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(out.Content)
}
