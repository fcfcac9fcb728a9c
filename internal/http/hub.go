package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"budgetlens/internal/core"
	"budgetlens/internal/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 512
	sendBuffer     = 8
)

const (
	msgInsights = "insights"
	msgError    = "error"
	msgLatest   = "latest"
)

type (
	hubMessage struct {
		Type   string      `json:"type"`
		Report *reportView `json:"report,omitempty"`
		Error  string      `json:"error,omitempty"`
	}

	clientMessage struct {
		Type string `json:"type"`
	}
)

// Hub pushes every published report to connected websocket clients. New
// clients receive the most recent report right away. It implements
// insights.Publisher.
type Hub struct {
	upgrader websocket.Upgrader
	symbol   string
	logger   *log.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	latest  []byte
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(currencySymbol string, logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Discard()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOrigin,
		},
		symbol:  currencySymbol,
		logger:  logger.WithComponent(log.ComponentHub),
		clients: make(map[*wsClient]struct{}),
	}
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from the serving host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// Publish broadcasts report. Clients whose buffers are full are dropped.
func (h *Hub) Publish(ctx context.Context, report core.Report) error {
	view := newReportView(report, h.symbol)
	data, err := json.Marshal(hubMessage{Type: msgInsights, Report: &view})
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.latest = data
	sent, dropped := 0, 0
	for c := range h.clients {
		if h.trySend(c, data) {
			sent++
		} else {
			dropped++
		}
	}
	h.mu.Unlock()

	h.logger.DebugContext(ctx, "Broadcast insights",
		log.FieldRunID, report.RunID,
		"clients", sent,
		"dropped", dropped)
	return nil
}

// trySend must be called with h.mu held.
func (h *Hub) trySend(c *wsClient, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		delete(h.clients, c)
		close(c.send)
		return false
	}
}

// ServeHTTP upgrades the connection and serves the client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", log.FieldError, err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.latest != nil {
		c.send <- h.latest
	}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) reply(c *wsClient, msg hubMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.trySend(c, data)
	}
}

func (h *Hub) readPump(ctx context.Context, c *wsClient) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WarnContext(ctx, "WebSocket closed unexpectedly", log.FieldError, err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reply(c, hubMessage{Type: msgError, Error: "invalid message format"})
			continue
		}

		switch msg.Type {
		case msgLatest:
			h.mu.Lock()
			latest := h.latest
			if latest != nil {
				if _, ok := h.clients[c]; ok {
					h.trySend(c, latest)
				}
			}
			h.mu.Unlock()
			if latest == nil {
				h.reply(c, hubMessage{Type: msgError, Error: "no insights published yet"})
			}
		default:
			h.reply(c, hubMessage{Type: msgError, Error: "unknown message type: " + msg.Type})
		}
	}
}

// writePump owns all writes to the connection.
func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
