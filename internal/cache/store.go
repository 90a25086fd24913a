// Package cache keeps fetched candle and pattern arrays for a bounded time.
package cache

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/metrics"
)

// Kind groups entries that share a TTL.
type Kind string

const (
	KindCandles  Kind = "candles"
	KindPatterns Kind = "patterns"
	KindBrowse   Kind = "browse"
)

// BrowseKey is the symbol slot used for the aggregated pattern list.
const BrowseKey = "all"

// Key builds the entry key "<kind>_<symbol>".
func Key(kind Kind, symbol string) string {
	return string(kind) + "_" + symbol
}

// Entry is a cached value and the time it was stored.
type Entry struct {
	Data      any
	Timestamp time.Time
}

// TTLs holds the lifetime of each kind.
type TTLs struct {
	Candles  time.Duration
	Patterns time.Duration
	Browse   time.Duration
}

// DefaultTTLs are used for kinds left at zero.
var DefaultTTLs = TTLs{
	Candles:  5 * time.Minute,
	Patterns: 10 * time.Minute,
	Browse:   10 * time.Minute,
}

// Stats describes the store contents.
type Stats struct {
	Entries int            `json:"entries"`
	Expired int            `json:"expired"`
	ByKind  map[string]int `json:"by_kind"`
	Hits    uint64         `json:"hits"`
	Misses  uint64         `json:"misses"`
	Keys    []string       `json:"keys"`
}

// Store is an in-memory TTL cache safe for concurrent use. An entry is valid
// while now - timestamp < ttl; expired entries are ignored on read and
// removed by Cleanup.
type Store struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttls    TTLs
	now     func() time.Time
	metrics *metrics.Registry

	hits   uint64
	misses uint64
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics records hits and misses in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Store) { s.metrics = reg }
}

// New creates an empty store.
func New(ttls TTLs, opts ...Option) *Store {
	if ttls.Candles <= 0 {
		ttls.Candles = DefaultTTLs.Candles
	}
	if ttls.Patterns <= 0 {
		ttls.Patterns = DefaultTTLs.Patterns
	}
	if ttls.Browse <= 0 {
		ttls.Browse = DefaultTTLs.Browse
	}
	s := &Store{
		entries: make(map[string]Entry),
		ttls:    ttls,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the lifetime of kind.
func (s *Store) TTL(kind Kind) time.Duration {
	switch kind {
	case KindCandles:
		return s.ttls.Candles
	case KindPatterns:
		return s.ttls.Patterns
	default:
		return s.ttls.Browse
	}
}

// Get returns the value under (kind, symbol) if present and unexpired.
func (s *Store) Get(kind Kind, symbol string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[Key(kind, symbol)]
	hit := ok && s.fresh(kind, e)
	if hit {
		s.hits++
	} else {
		s.misses++
	}
	s.metrics.RecordCacheLookup(string(kind), hit)
	if !hit {
		return nil, false
	}
	return e.Data, true
}

// Set stores data under (kind, symbol) stamped with the current time.
func (s *Store) Set(kind Kind, symbol string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[Key(kind, symbol)] = Entry{Data: data, Timestamp: s.now()}
}

// Delete removes one entry.
func (s *Store) Delete(kind Kind, symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, Key(kind, symbol))
}

// Cleanup removes expired entries and reports how many were dropped.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if !s.fresh(kindOf(key), e) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry and reports how many there were.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	s.entries = make(map[string]Entry)
	return n
}

// Stats returns a snapshot of the store.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Entries: len(s.entries),
		ByKind:  make(map[string]int),
		Hits:    s.hits,
		Misses:  s.misses,
		Keys:    make([]string, 0, len(s.entries)),
	}
	for key, e := range s.entries {
		kind := kindOf(key)
		st.ByKind[string(kind)]++
		if !s.fresh(kind, e) {
			st.Expired++
		}
		st.Keys = append(st.Keys, key)
	}
	sort.Strings(st.Keys)
	return st
}

func (s *Store) fresh(kind Kind, e Entry) bool {
	return s.now().Sub(e.Timestamp) < s.TTL(kind)
}

func kindOf(key string) Kind {
	kind, _, _ := strings.Cut(key, "_")
	return Kind(kind)
}

// Candles returns the cached candle series for symbol.
func (s *Store) Candles(symbol string) ([]core.Candle, bool) {
	v, ok := s.Get(KindCandles, symbol)
	if !ok {
		return nil, false
	}
	c, ok := v.([]core.Candle)
	return c, ok
}

// Patterns returns the cached patterns for symbol.
func (s *Store) Patterns(symbol string) ([]core.Pattern, bool) {
	v, ok := s.Get(KindPatterns, symbol)
	if !ok {
		return nil, false
	}
	p, ok := v.([]core.Pattern)
	return p, ok
}

// Browse returns the cached aggregated pattern list.
func (s *Store) Browse() ([]core.Pattern, bool) {
	v, ok := s.Get(KindBrowse, BrowseKey)
	if !ok {
		return nil, false
	}
	p, ok := v.([]core.Pattern)
	return p, ok
}
