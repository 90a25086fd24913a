// internal/api/handler/web/dashboard.go
package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/newthinker/candlescope/internal/api/response"
	"github.com/newthinker/candlescope/internal/browse"
	"github.com/newthinker/candlescope/internal/chart"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/table"
)

// DashboardData holds data for the dashboard template
type DashboardData struct {
	Title     string
	Symbol    string
	Symbols   []string
	Stats     browse.Stats
	Columns   []Column
	Rows      []Row
	Page      table.Page
	Pager     Pager
	Selected  string
	Highlight *chart.Annotation
	ChartURL  string
	FromCache bool
	Error     *ErrorView
}

// Column is a sortable table header.
type Column struct {
	Label  string
	URL    string
	Active bool
	Arrow  string
}

// Row is one pattern in the table.
type Row struct {
	Pattern  core.Pattern
	URL      string
	Selected bool
}

var columns = []struct {
	label string
	key   table.SortKey
}{
	{"Pattern", table.SortPattern},
	{"Confidence", table.SortConfidence},
	{"Detected", table.SortTimestamp},
}

// SymbolRedirect handles the symbol selector form: GET /symbols?symbol=TCS
func (h *Handler) SymbolRedirect(w http.ResponseWriter, r *http.Request) {
	sym := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if sym == "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/symbols/"+url.PathEscape(sym), http.StatusSeeOther)
}

// Dashboard renders one symbol: selector, stats, chart frame and the
// sortable, paginated pattern table.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request, symbol string) {
	q := r.URL.Query()
	path := "/symbols/" + url.PathEscape(symbol)

	data := DashboardData{
		Title:   symbol,
		Symbol:  symbol,
		Symbols: h.browser.Symbols(),
	}

	res, err := h.loader.Load(r.Context(), symbol)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		data.Error = errorView(err, r.URL.RequestURI())
		h.render(w, response.StatusOf(err), "dashboard.html", data)
		return
	}
	data.Symbol = res.Symbol
	data.FromCache = res.FromCache
	data.Stats = browse.StatsOf(res.Patterns)

	state := table.FromQuery(q, h.pageSize)
	data.Page = state.Apply(res.Patterns)
	data.Pager = newPager(path, selection(q), state, data.Page)

	for _, c := range columns {
		col := Column{
			Label: c.label,
			URL:   path + "?" + state.SortLink(c.key).Query(nil).Encode(),
		}
		if state.Key == c.key {
			col.Active = true
			col.Arrow = "↓"
			if state.Dir == table.Asc {
				col.Arrow = "↑"
			}
		}
		data.Columns = append(data.Columns, col)
	}

	if id := q.Get("pattern"); id != "" {
		if a, ok := chart.HighlightByID(res.Patterns, res.Candles, id); ok {
			data.Selected = id
			data.Highlight = &a
		}
	}

	for _, p := range data.Page.Items {
		rq := url.Values{}
		if p.ID != data.Selected {
			rq.Set("pattern", p.ID)
		}
		data.Rows = append(data.Rows, Row{
			Pattern:  p,
			URL:      path + "?" + state.Query(rq).Encode(),
			Selected: p.ID == data.Selected,
		})
	}

	chartQuery := url.Values{}
	if data.Selected != "" {
		chartQuery.Set("pattern", data.Selected)
	}
	data.ChartURL = "/chart/" + url.PathEscape(res.Symbol)
	if len(chartQuery) > 0 {
		data.ChartURL += "?" + chartQuery.Encode()
	}

	h.render(w, http.StatusOK, "dashboard.html", data)
}

func selection(q url.Values) url.Values {
	out := url.Values{}
	if id := q.Get("pattern"); id != "" {
		out.Set("pattern", id)
	}
	return out
}
