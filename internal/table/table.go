// Package table sorts and paginates pattern lists for tabular views.
package table

import (
	"sort"
	"strings"

	"github.com/newthinker/candlescope/internal/core"
)

// SortKey names a sortable column.
type SortKey string

const (
	SortTimestamp  SortKey = "timestamp"
	SortConfidence SortKey = "confidence"
	SortPattern    SortKey = "pattern"
)

// Direction is the sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 10

// ParseSortKey maps a query value to a key, defaulting to timestamp.
func ParseSortKey(s string) SortKey {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case SortConfidence:
		return SortConfidence
	case SortPattern:
		return SortPattern
	default:
		return SortTimestamp
	}
}

// ParseDirection maps a query value to a direction, defaulting to desc.
func ParseDirection(s string) Direction {
	if Direction(strings.ToLower(strings.TrimSpace(s))) == Asc {
		return Asc
	}
	return Desc
}

// Toggle returns the opposite direction.
func (d Direction) Toggle() Direction {
	if d == Asc {
		return Desc
	}
	return Asc
}

// Sort returns a sorted copy of ps. Equal keys keep their input order, so
// sorting an already sorted list changes nothing.
func Sort(ps []core.Pattern, key SortKey, dir Direction) []core.Pattern {
	out := append([]core.Pattern(nil), ps...)
	less := lessFunc(key)
	sort.SliceStable(out, func(i, j int) bool {
		if dir == Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFunc(key SortKey) func(a, b core.Pattern) bool {
	switch key {
	case SortConfidence:
		return func(a, b core.Pattern) bool { return a.Confidence < b.Confidence }
	case SortPattern:
		return func(a, b core.Pattern) bool { return a.Pattern < b.Pattern }
	default:
		return timestampLess
	}
}

// timestampLess orders by parsed time; unparseable timestamps sort first and
// compare as strings among themselves.
func timestampLess(a, b core.Pattern) bool {
	ta, okA := a.Time()
	tb, okB := b.Time()
	switch {
	case okA && okB:
		return ta.Before(tb)
	case okA != okB:
		return !okA
	default:
		return a.Timestamp < b.Timestamp
	}
}

// Page is one slice of a paginated list.
type Page struct {
	Items      []core.Pattern `json:"items"`
	Number     int            `json:"page"`
	Size       int            `json:"pageSize"`
	Total      int            `json:"total"`
	TotalPages int            `json:"totalPages"`
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool { return p.Number > 1 }

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool { return p.Number < p.TotalPages }

// Prev returns the previous page number.
func (p Page) Prev() int { return p.Number - 1 }

// Next returns the next page number.
func (p Page) Next() int { return p.Number + 1 }

// First is the 1-based position of the first item, 0 when empty.
func (p Page) First() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Number-1)*p.Size + 1
}

// Last is the 1-based position of the last item.
func (p Page) Last() int {
	return p.First() + len(p.Items) - 1
}

// Paginate returns page number (1-based) of ps. The page is clamped into
// [1, TotalPages]; an empty list has one empty page.
func Paginate(ps []core.Pattern, number, size int) Page {
	if size < 1 {
		size = DefaultPageSize
	}
	totalPages := (len(ps) + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if number < 1 {
		number = 1
	}
	if number > totalPages {
		number = totalPages
	}

	start := (number - 1) * size
	end := start + size
	if end > len(ps) {
		end = len(ps)
	}
	items := []core.Pattern{}
	if start < end {
		items = ps[start:end]
	}

	return Page{
		Items:      items,
		Number:     number,
		Size:       size,
		Total:      len(ps),
		TotalPages: totalPages,
	}
}

// State is the sort and page selection of one table.
type State struct {
	Key      SortKey
	Dir      Direction
	Page     int
	PageSize int

	defaultSize int // page size links may omit
}

// NewState returns the default state: newest first, page 1.
func NewState(pageSize int) State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return State{Key: SortTimestamp, Dir: Desc, Page: 1, PageSize: pageSize, defaultSize: pageSize}
}

// SetSort changes the sort. Clicking the active column flips the direction;
// any sort change returns to page 1.
func (s *State) SetSort(key SortKey) {
	if s.Key == key {
		s.Dir = s.Dir.Toggle()
	} else {
		s.Key = key
		s.Dir = Desc
	}
	s.Page = 1
}

// Apply sorts and paginates ps, clamping s.Page to a valid page.
func (s *State) Apply(ps []core.Pattern) Page {
	page := Paginate(Sort(ps, s.Key, s.Dir), s.Page, s.PageSize)
	s.Page = page.Number
	return page
}
