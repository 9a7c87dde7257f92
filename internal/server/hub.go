package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/claude/liftlog/internal/models"
	"github.com/claude/liftlog/internal/session"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sessionFrame is the wire shape pushed to websocket clients. A nil
// session is sent as {"session": null} so clients can clear their view.
type sessionFrame struct {
	Session *models.Session `json:"session"`
}

// wsClient is one connected websocket. All writes to the conn happen on a
// single goroutine draining send; gorilla conns forbid concurrent writers.
// send has capacity 1 and carries only the newest undelivered frame.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// enqueue hands a frame to the client's writer, replacing any undelivered
// previous frame (latest-value semantics, as in the session manager's
// subscriber channels). Callers must hold the hub lock so enqueue cannot
// race the close in unregister.
func (c *wsClient) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- data:
		default:
		}
	}
}

// Hub pushes live session snapshots to connected websocket clients.
// It holds the latest snapshot so a client connecting mid-workout gets
// the current state immediately instead of waiting for the next change.
type Hub struct {
	manager *session.Manager
	log     *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	latest  []byte
}

// NewHub creates a hub bound to the session manager.
func NewHub(manager *session.Manager, log *slog.Logger) *Hub {
	return &Hub{
		manager: manager,
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run subscribes to session changes and broadcasts each snapshot until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.manager.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case sess, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(sessionFrame{Session: sess})
			if err != nil {
				h.log.Error("encoding session frame", "error", err)
				continue
			}
			h.broadcast(data)
		}
	}
}

// HandleWebSocket upgrades the connection and streams session snapshots
// to it. Incoming messages are read and discarded; the read loop exists
// only to detect disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := h.register(conn)
	go h.writeLoop(c)
	go h.readLoop(c)
}

// register adds the client and queues the held latest frame so the writer
// delivers it first.
func (h *Hub) register(conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn, send: make(chan []byte, 1)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.latest != nil {
		c.send <- h.latest
	}
	total := len(h.clients)
	h.mu.Unlock()

	h.log.Info("websocket connected", "total", total)
	return c
}

// unregister removes the client and closes its send channel, which stops
// the writer. Safe to call more than once.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, registered := h.clients[c]
	if registered {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if registered {
		h.log.Info("websocket disconnected", "total", total)
	}
}

// writeLoop is the sole writer for the connection.
func (h *Hub) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.unregister(c)
			return
		}
	}
}

func (h *Hub) readLoop(c *wsClient) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = data
	for c := range h.clients {
		c.enqueue(data)
	}
}
