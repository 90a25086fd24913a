package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/newthinker/candlescope/internal/chart"
	"github.com/newthinker/candlescope/internal/core"
	"go.uber.org/zap"
)

// ErrorInfo is the user-facing form of a load failure.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// State is a snapshot of a session.
type State struct {
	Symbol    string            `json:"symbol"`
	Loading   bool              `json:"loading"`
	Error     *ErrorInfo        `json:"error"`
	Candles   []core.Candle     `json:"candles"`
	Patterns  []core.Pattern    `json:"patterns"`
	FromCache bool              `json:"fromCache"`
	Selected  string            `json:"selected,omitempty"`
	Highlight *chart.Annotation `json:"highlight,omitempty"`
}

// updatesBuffer bounds how far a slow subscriber may lag; older snapshots
// are dropped in favour of newer ones.
const updatesBuffer = 8

// Session holds the load state of one dashboard client. Changing the symbol
// cancels the load in flight and a generation counter keeps late responses
// for an old symbol from overwriting newer state. There is no automatic
// retry.
type Session struct {
	loader SymbolLoader
	logger *zap.Logger

	mu      sync.Mutex
	state   State
	gen     uint64
	cancel  context.CancelFunc
	closed  bool
	updates chan State
	wg      sync.WaitGroup
}

// NewSession creates an idle session.
func NewSession(loader SymbolLoader, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		loader:  loader,
		logger:  logger,
		state:   State{Candles: []core.Candle{}, Patterns: []core.Pattern{}},
		updates: make(chan State, updatesBuffer),
	}
}

// Updates delivers every published state. The channel is closed by Close.
func (s *Session) Updates() <-chan State {
	return s.updates
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSymbol switches the session to symbol and starts loading it. Setting
// the symbol already loaded without error is a no-op.
func (s *Session) SetSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if symbol == s.state.Symbol && s.state.Error == nil && symbol != "" {
		return
	}
	if symbol == "" {
		s.stopLocked()
		s.state = State{
			Error:    errorInfo(core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("no symbol selected"))),
			Candles:  []core.Candle{},
			Patterns: []core.Pattern{},
		}
		s.publishLocked()
		return
	}
	s.startLocked(symbol)
}

// Retry reloads the current symbol.
func (s *Session) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state.Symbol == "" {
		return
	}
	s.startLocked(s.state.Symbol)
}

// Select highlights the pattern with the given id. An empty id clears the
// selection. Unknown ids leave the state unchanged.
func (s *Session) Select(patternID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if patternID == "" {
		s.state.Selected = ""
		s.state.Highlight = nil
		s.publishLocked()
		return nil
	}

	for _, p := range s.state.Patterns {
		if p.ID != patternID {
			continue
		}
		a, ok := chart.Highlight(p, s.state.Candles)
		if !ok {
			break
		}
		s.state.Selected = patternID
		s.state.Highlight = &a
		s.publishLocked()
		return nil
	}
	return core.WrapError(core.ErrPatternNotFound, fmt.Errorf("pattern %q not loaded for %s", patternID, s.state.Symbol))
}

// Close cancels any load in flight and stops publishing.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopLocked()
	close(s.updates)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Session) stopLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
}

func (s *Session) startLocked(symbol string) {
	s.stopLocked()
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.state = State{
		Symbol:   symbol,
		Loading:  true,
		Candles:  []core.Candle{},
		Patterns: []core.Pattern{},
	}
	s.publishLocked()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		res, err := s.loader.Load(ctx, symbol)
		s.finish(ctx, gen, res, err)
	}()
}

func (s *Session) finish(ctx context.Context, gen uint64, res Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || gen != s.gen {
		return
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	s.cancel = nil

	if err != nil {
		s.logger.Warn("symbol load failed", zap.String("symbol", s.state.Symbol), zap.Error(err))
		s.state = State{
			Symbol:   s.state.Symbol,
			Error:    errorInfo(err),
			Candles:  []core.Candle{},
			Patterns: []core.Pattern{},
		}
		s.publishLocked()
		return
	}

	s.state = State{
		Symbol:    s.state.Symbol,
		Candles:   res.Candles,
		Patterns:  res.Patterns,
		FromCache: res.FromCache,
	}
	s.publishLocked()
}

// publishLocked hands the current state to subscribers without blocking,
// dropping the oldest pending snapshot when the buffer is full.
func (s *Session) publishLocked() {
	st := s.state
	for {
		select {
		case s.updates <- st:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

func errorInfo(err error) *ErrorInfo {
	var ce *core.Error
	if errors.As(err, &ce) {
		return &ErrorInfo{Code: ce.Code, Message: ce.Message}
	}
	return &ErrorInfo{Code: "INTERNAL", Message: "failed to load data"}
}
