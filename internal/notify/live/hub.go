// Package live pushes notifications to websocket subscribers of the API.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/gameresult-crawler/internal/id/uuid"
	"github.com/JakeFAU/gameresult-crawler/internal/notify"
)

// Name identifies the channel.
const Name = "live"

const (
	sendBuffer   = 16
	writeTimeout = 10 * time.Second
)

// Hub is both a notify.Channel and the http.Handler clients connect to.
type Hub struct {
	enabled  bool
	upgrader websocket.Upgrader
	ids      *uuid.Generator
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewHub builds a Hub. A disabled hub rejects upgrades and reports itself
// unconfigured.
func NewHub(enabled bool, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		enabled: enabled,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		ids:     uuid.New(),
		logger:  logger,
		clients: make(map[string]*client),
	}
}

// Name implements notify.Channel.
func (h *Hub) Name() string { return Name }

// Configured implements notify.Channel.
func (h *Hub) Configured() bool { return h.enabled }

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send queues msg for every subscriber. Slow subscribers whose buffer is
// full are disconnected.
func (h *Hub) Send(_ context.Context, msg notify.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal live message: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow live subscriber", zap.String("client_id", id))
			delete(h.clients, id)
			c.close()
		}
	}
	return nil
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		http.Error(w, "live updates disabled", http.StatusNotFound)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{id: h.ids.MustNewID(), conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("live subscriber connected", zap.String("client_id", c.id))

	go c.writeLoop()
	c.readLoop()
	h.remove(c)
}

// Close disconnects every subscriber.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		c.close()
	}
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if current, ok := h.clients[c.id]; ok && current == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
	h.logger.Debug("live subscriber disconnected", zap.String("client_id", c.id))
}

// readLoop drains client frames so close and ping control messages are
// processed; it returns when the connection ends.
func (c *client) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}
