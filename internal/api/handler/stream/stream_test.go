// internal/api/handler/stream/stream_test.go
package stream

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/candlescope/internal/core"
	"github.com/newthinker/candlescope/internal/fetch"
	"github.com/newthinker/candlescope/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLoader map[string]fetch.Result

func (l stubLoader) Load(ctx context.Context, symbol string) (fetch.Result, error) {
	res, ok := l[strings.ToUpper(symbol)]
	if !ok {
		return fetch.Result{}, core.ErrNoData
	}
	return res, nil
}

func fixture() stubLoader {
	return stubLoader{
		"TCS": {
			Symbol:  "TCS",
			Candles: []core.Candle{{Timestamp: "2024-01-01", Open: 1, High: 2, Low: 0.5, Close: 1.5}},
			Patterns: []core.Pattern{
				{ID: "p1", Symbol: "TCS", Pattern: "Hammer", CandleIndex: 0, Timestamp: "2024-01-01"},
			},
		},
	}
}

func dial(t *testing.T, h *Handler, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dashboard" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// settled reads events until one is not a loading state.
func settled(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var e Event
		require.NoError(t, conn.ReadJSON(&e))
		if e.Type == TypeState && e.State.Loading {
			continue
		}
		return e
	}
}

func TestHandler_InitialSymbol(t *testing.T) {
	conn := dial(t, NewHandler(fixture(), nil, nil), "?symbol=TCS")

	e := settled(t, conn)
	require.Equal(t, TypeState, e.Type)
	assert.Equal(t, "TCS", e.State.Symbol)
	assert.Nil(t, e.State.Error)
	assert.Len(t, e.State.Patterns, 1)
}

func TestHandler_SelectAndErrors(t *testing.T) {
	conn := dial(t, NewHandler(fixture(), nil, nil), "")

	require.NoError(t, conn.WriteJSON(Message{Type: TypeSymbol, Symbol: "TCS"}))
	settled(t, conn)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeSelect, Pattern: "p1"}))
	e := settled(t, conn)
	require.Equal(t, TypeState, e.Type)
	assert.Equal(t, "p1", e.State.Selected)
	require.NotNil(t, e.State.Highlight)
	assert.InDelta(t, 2.04, e.State.Highlight.Y, 1e-9)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeSelect, Pattern: "missing"}))
	e = settled(t, conn)
	require.Equal(t, TypeError, e.Type)
	assert.Equal(t, "PATTERN_NOT_FOUND", e.Error.Code)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	e = settled(t, conn)
	require.Equal(t, TypeError, e.Type)
	assert.Equal(t, "INVALID_MESSAGE", e.Error.Code)
}

func TestHandler_LoadErrorThenRetry(t *testing.T) {
	conn := dial(t, NewHandler(fixture(), nil, nil), "?symbol=NOPE")

	e := settled(t, conn)
	require.NotNil(t, e.State.Error)
	assert.Equal(t, "NO_DATA", e.State.Error.Code)
	assert.Empty(t, e.State.Candles)

	require.NoError(t, conn.WriteJSON(Message{Type: TypeRetry}))
	e = settled(t, conn)
	require.NotNil(t, e.State.Error)
	assert.Equal(t, "NOPE", e.State.Symbol)
}

func TestHandler_SessionGauge(t *testing.T) {
	reg := metrics.NewRegistry()
	conn := dial(t, NewHandler(fixture(), reg, nil), "?symbol=TCS")
	settled(t, conn)

	assert.Equal(t, 1.0, activeSessions(t, reg))

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	assert.Eventually(t, func() bool {
		return activeSessions(t, reg) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func activeSessions(t *testing.T, reg *metrics.Registry) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "candlescope_sessions_active" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	t.Fatal("sessions gauge not registered")
	return 0
}
