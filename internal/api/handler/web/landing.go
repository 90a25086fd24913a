// internal/api/handler/web/landing.go
package web

import (
	"net/http"
	"net/url"

	"github.com/newthinker/candlescope/internal/api/response"
	"github.com/newthinker/candlescope/internal/browse"
	"github.com/newthinker/candlescope/internal/table"
)

// LandingData holds data for the landing template
type LandingData struct {
	Title   string
	Filter  browse.Filter
	Options browse.Options
	Stats   browse.Stats
	Page    table.Page
	Pager   Pager
	Symbols []string
	Error   *ErrorView
}

// Pager builds the previous/next links of a paginated view.
type Pager struct {
	PrevURL string
	NextURL string
}

func newPager(path string, base url.Values, s table.State, p table.Page) Pager {
	var pg Pager
	if p.HasPrev() {
		pg.PrevURL = path + "?" + s.PageLink(p.Prev()).Query(base).Encode()
	}
	if p.HasNext() {
		pg.NextURL = path + "?" + s.PageLink(p.Next()).Query(base).Encode()
	}
	return pg
}

// Landing renders the browse view: filter form, stats and pattern cards.
func (h *Handler) Landing(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	data := LandingData{
		Title:   "Pattern Browser",
		Filter:  browse.ParseFilter(q),
		Symbols: h.browser.Symbols(),
	}

	all, err := h.browser.Patterns(r.Context())
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		data.Error = errorView(err, r.URL.RequestURI())
		h.render(w, response.StatusOf(err), "landing.html", data)
		return
	}

	filtered := data.Filter.Apply(all)
	state := table.FromQuery(q, h.pageSize)
	data.Page = state.Apply(filtered)
	data.Pager = newPager("/", data.Filter.Query(), state, data.Page)
	data.Options = browse.OptionsOf(all)
	data.Stats = browse.StatsOf(filtered)

	h.render(w, http.StatusOK, "landing.html", data)
}
