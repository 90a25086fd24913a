package table

import (
	"net/url"
	"strconv"
)

// MaxPageSize caps a page size requested through a query string.
const MaxPageSize = 100

// FromQuery reads sort, dir, page and page_size. Invalid values fall back to
// the defaults.
func FromQuery(q url.Values, pageSize int) State {
	s := NewState(pageSize)
	s.Key = ParseSortKey(q.Get("sort"))
	s.Dir = ParseDirection(q.Get("dir"))

	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		s.Page = n
	}
	if n, err := strconv.Atoi(q.Get("page_size")); err == nil && n > 0 {
		s.PageSize = min(n, MaxPageSize)
	}
	return s
}

// Query encodes s onto base, leaving other parameters untouched. page_size
// is written only when it differs from the configured size.
func (s State) Query(base url.Values) url.Values {
	q := url.Values{}
	for k, v := range base {
		q[k] = append([]string(nil), v...)
	}
	q.Set("sort", string(s.Key))
	q.Set("dir", string(s.Dir))
	q.Set("page", strconv.Itoa(s.Page))
	if s.PageSize != s.defaultSize {
		q.Set("page_size", strconv.Itoa(s.PageSize))
	} else {
		q.Del("page_size")
	}
	return q
}

// SortLink returns the state a click on the key column header leads to.
func (s State) SortLink(key SortKey) State {
	next := s
	next.SetSort(key)
	return next
}

// PageLink returns s moved to page n.
func (s State) PageLink(n int) State {
	next := s
	next.Page = n
	return next
}
