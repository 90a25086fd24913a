// Package source defines where raw candle and pattern payloads come from.
package source

import (
	"context"
	"sort"
	"sync"
)

// Source fetches raw JSON payloads for a symbol. Implementations return the
// body untouched; validation happens in package payload.
type Source interface {
	Name() string
	FetchCandles(ctx context.Context, symbol string) ([]byte, error)
	FetchPatterns(ctx context.Context, symbol string) ([]byte, error)
}

// Catalog is implemented by sources that can list every known pattern at once.
type Catalog interface {
	AllPatterns(ctx context.Context) ([]byte, error)
}

// Registry manages named sources.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
}

// NewRegistry creates a new source registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]Source),
	}
}

// Register adds a source, replacing any source with the same name.
func (r *Registry) Register(s Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[s.Name()] = s
}

// Get retrieves a source by name.
func (r *Registry) Get(name string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	return s, ok
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
