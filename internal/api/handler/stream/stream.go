// internal/api/handler/stream/stream.go
package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/newthinker/candlescope/internal/fetch"
	"github.com/newthinker/candlescope/internal/metrics"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	repliesBuffer  = 4
)

// Client message types.
const (
	TypeSymbol = "symbol"
	TypeSelect = "select"
	TypeRetry  = "retry"
)

// Server message types.
const (
	TypeState = "state"
	TypeError = "error"
)

// Message is sent by the client.
type Message struct {
	Type    string `json:"type"`
	Symbol  string `json:"symbol,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// Event is sent to the client.
type Event struct {
	Type  string           `json:"type"`
	State *fetch.State     `json:"state,omitempty"`
	Error *fetch.ErrorInfo `json:"error,omitempty"`
}

// Handler upgrades dashboard connections and drives one session per
// connection.
type Handler struct {
	loader   fetch.SymbolLoader
	metrics  *metrics.Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a stream handler.
func NewHandler(loader fetch.SymbolLoader, reg *metrics.Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		loader:  loader,
		metrics: reg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP handles GET /ws/dashboard[?symbol=TCS]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()

	c := &client{
		conn:    conn,
		session: fetch.NewSession(h.loader, h.logger),
		replies: make(chan Event, repliesBuffer),
		done:    make(chan struct{}),
		logger:  h.logger,
	}

	go c.writePump()

	if sym := r.URL.Query().Get("symbol"); sym != "" {
		c.session.SetSymbol(sym)
	}
	c.readPump()

	c.session.Close()
	<-c.done
}

type client struct {
	conn    *websocket.Conn
	session *fetch.Session
	replies chan Event
	done    chan struct{}
	logger  *zap.Logger
}

// readPump dispatches client messages until the connection fails.
func (c *client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(Event{Type: TypeError, Error: &fetch.ErrorInfo{Code: "INVALID_MESSAGE", Message: "message must be JSON"}})
			continue
		}
		c.dispatch(msg)
	}
}

func (c *client) dispatch(msg Message) {
	switch msg.Type {
	case TypeSymbol:
		c.session.SetSymbol(msg.Symbol)
	case TypeSelect:
		if err := c.session.Select(msg.Pattern); err != nil {
			c.reply(Event{Type: TypeError, Error: &fetch.ErrorInfo{Code: "PATTERN_NOT_FOUND", Message: "pattern not found"}})
		}
	case TypeRetry:
		c.session.Retry()
	default:
		c.reply(Event{Type: TypeError, Error: &fetch.ErrorInfo{Code: "INVALID_MESSAGE", Message: "unknown message type " + msg.Type}})
	}
}

// reply queues a direct answer, dropping it if the writer is backed up.
func (c *client) reply(e Event) {
	select {
	case c.replies <- e:
	default:
	}
}

// writePump is the only writer on the connection. It exits when the session
// closes its update channel or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.done)
	}()

	updates := c.session.Updates()
	for {
		select {
		case st, ok := <-updates:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(Event{Type: TypeState, State: &st}); err != nil {
				c.fail(err)
				return
			}

		case e := <-c.replies:
			if err := c.write(e); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *client) write(e Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(e)
}

// fail logs a write error. Closing the connection in writePump unblocks
// readPump, which then closes the session.
func (c *client) fail(err error) {
	c.logger.Debug("websocket write error", zap.Error(err))
}
