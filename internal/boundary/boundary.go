// Package boundary isolates render failures. A render function either
// produces content or the boundary yields a fallback describing the failure,
// and the failure sticks until the boundary is reset.
package boundary

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"

	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/metrics"
	"go.uber.org/zap"
)

// DefaultTitle heads every fallback.
const DefaultTitle = "Something went wrong"

// Fallback replaces content that failed to render.
type Fallback struct {
	Title   string
	Message string
	Err     error
}

// Outcome is the result of a render: Content when Fallback is nil.
type Outcome struct {
	Content  []byte
	Fallback *Fallback
}

// OK reports whether the render produced content.
func (o Outcome) OK() bool {
	return o.Fallback == nil
}

// ErrPanic wraps a recovered panic value.
var ErrPanic = errors.New("render panicked")

// Boundary guards one render site.
type Boundary struct {
	name    string
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	tripped *Fallback
}

// New creates a boundary. name labels logs and metrics.
func New(name string, logger *zap.Logger, reg *metrics.Registry) *Boundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Boundary{name: name, logger: logger, metrics: reg}
}

// Render runs fn unless the boundary has tripped. An error or panic from fn
// trips the boundary.
func (b *Boundary) Render(fn func(w io.Writer) error) Outcome {
	b.mu.Lock()
	if b.tripped != nil {
		fb := *b.tripped
		b.mu.Unlock()
		return Outcome{Fallback: &fb}
	}
	b.mu.Unlock()

	var buf bytes.Buffer
	if err := safeRender(fn, &buf); err != nil {
		fb := b.trip(err)
		return Outcome{Fallback: &fb}
	}
	return Outcome{Content: buf.Bytes()}
}

// Tripped reports whether the boundary is showing its fallback.
func (b *Boundary) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tripped != nil
}

// Reset clears a tripped boundary so the next Render tries again.
func (b *Boundary) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripped = nil
}

func (b *Boundary) trip(err error) Fallback {
	fb := Fallback{Title: DefaultTitle, Message: message(err), Err: err}

	if errors.Is(err, ErrPanic) {
		b.logger.Error("render panicked", zap.String("boundary", b.name), zap.Error(err))
	} else {
		b.logger.Warn("render failed", zap.String("boundary", b.name), zap.Error(err))
	}
	b.metrics.RecordFallback(b.name)

	b.mu.Lock()
	b.tripped = &fb
	b.mu.Unlock()
	return fb
}

func safeRender(fn func(io.Writer) error, w io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn(w)
}

func message(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	return "An unexpected error occurred while rendering this view."
}

// Set keeps one boundary per key, e.g. per symbol.
type Set struct {
	name    string
	logger  *zap.Logger
	metrics *metrics.Registry

	mu         sync.Mutex
	boundaries map[string]*Boundary
}

// NewSet creates an empty set whose boundaries share name, logger and
// metrics.
func NewSet(name string, logger *zap.Logger, reg *metrics.Registry) *Set {
	return &Set{name: name, logger: logger, metrics: reg, boundaries: map[string]*Boundary{}}
}

// Get returns the boundary for key, creating it on first use.
func (s *Set) Get(key string) *Boundary {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boundaries[key]
	if !ok {
		b = New(s.name, s.logger, s.metrics)
		s.boundaries[key] = b
	}
	return b
}

// Len reports how many boundaries the set holds.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.boundaries)
}
