package browse

import (
	"net/url"
	"sort"
	"strings"

	"github.com/newthinker/candlescope/internal/classify"
	"github.com/newthinker/candlescope/internal/core"
)

// All is the dropdown value meaning "no filter".
const All = "All"

// Filter narrows the aggregated list. Empty or All fields match everything.
type Filter struct {
	Symbol    string `json:"symbol"`
	Pattern   string `json:"pattern"`
	Timeframe string `json:"timeframe"`
}

// ParseFilter reads the symbol, pattern and timeframe query parameters.
func ParseFilter(q url.Values) Filter {
	return Filter{
		Symbol:    q.Get("symbol"),
		Pattern:   q.Get("pattern"),
		Timeframe: q.Get("timeframe"),
	}
}

// Query encodes the active fields of f.
func (f Filter) Query() url.Values {
	q := url.Values{}
	if !wildcard(f.Symbol) {
		q.Set("symbol", f.Symbol)
	}
	if !wildcard(f.Pattern) {
		q.Set("pattern", f.Pattern)
	}
	if !wildcard(f.Timeframe) {
		q.Set("timeframe", f.Timeframe)
	}
	return q
}

// Active reports whether any field filters.
func (f Filter) Active() bool {
	return !wildcard(f.Symbol) || !wildcard(f.Pattern) || !wildcard(f.Timeframe)
}

// Apply returns the matching patterns in their original order.
func (f Filter) Apply(ps []core.Pattern) []core.Pattern {
	out := make([]core.Pattern, 0, len(ps))
	for _, p := range ps {
		if match(p.Symbol, f.Symbol) && match(p.Pattern, f.Pattern) && match(p.Timeframe, f.Timeframe) {
			out = append(out, p)
		}
	}
	return out
}

func wildcard(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || v == All
}

func match(value, want string) bool {
	return wildcard(want) || strings.EqualFold(value, strings.TrimSpace(want))
}

// Options lists the distinct values offered by the filter dropdowns.
type Options struct {
	Symbols    []string `json:"symbols"`
	Patterns   []string `json:"patterns"`
	Timeframes []string `json:"timeframes"`
}

// OptionsOf collects sorted distinct symbols, pattern names and timeframes.
func OptionsOf(ps []core.Pattern) Options {
	symbols := map[string]bool{}
	names := map[string]bool{}
	frames := map[string]bool{}
	for _, p := range ps {
		symbols[p.Symbol] = true
		names[p.Pattern] = true
		frames[p.Timeframe] = true
	}
	return Options{
		Symbols:    sortedKeys(symbols),
		Patterns:   sortedKeys(names),
		Timeframes: sortedKeys(frames),
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Stats summarises a pattern list by sentiment.
type Stats struct {
	Total   int `json:"total"`
	Bullish int `json:"bullish"`
	Bearish int `json:"bearish"`
	Neutral int `json:"neutral"`
	Symbols int `json:"symbols"`
}

// StatsOf counts patterns by sentiment and distinct symbol.
func StatsOf(ps []core.Pattern) Stats {
	st := Stats{Total: len(ps)}
	symbols := map[string]bool{}
	for _, p := range ps {
		symbols[p.Symbol] = true
		switch classify.SentimentOf(p.Pattern) {
		case classify.Bullish:
			st.Bullish++
		case classify.Bearish:
			st.Bearish++
		default:
			st.Neutral++
		}
	}
	st.Symbols = len(symbols)
	return st
}
