// ABOUTME: WebSocket connection wrapper and registry for the gateway.
// ABOUTME: Owns per-connection send buffering, write pump, and connection identity.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/2389/relay-gateway/internal/event"
)

const (
	// writeWait bounds a single write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long we tolerate silence before dropping the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound action frames.
	maxMessageSize = 64 * 1024

	// sendBuffer is the per-connection outbound queue depth. A full
	// buffer means the consumer is too slow; the connection is dropped
	// rather than blocking relay invocations.
	sendBuffer = 64
)

// ErrConnClosed indicates a push to a connection that has gone away.
var ErrConnClosed = errors.New("connection closed")

// Conn is one client connection. It implements relay.Pusher.
type Conn struct {
	// ID uniquely identifies this connection for the process lifetime.
	ID string

	// UserID is the verified token subject, empty when auth is disabled.
	UserID string

	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newConn(id string, ws *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		ID:     id,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Push enqueues one event for delivery to the client. It never blocks:
// a closed connection or a full buffer returns ErrConnClosed so the
// caller stops delivering.
func (c *Conn) Push(ev event.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		// Slow consumer; drop the connection rather than stall.
		c.close()
		return fmt.Errorf("%w: send buffer full", ErrConnClosed)
	}
}

// close marks the connection dead and closes the underlying socket.
// Safe to call from any goroutine, any number of times.
func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

// writePump serializes all writes to the peer and emits keepalive pings.
// It exits when the connection is closed from either side.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("write failed", "conn_id", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// Hub tracks open connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Conn)}
}

// Register adds a connection.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
}

// Unregister removes and closes a connection.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.conns[id]
	delete(h.conns, id)
	h.mu.Unlock()

	if ok {
		c.close()
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every connection; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.conns {
		c.close()
		delete(h.conns, id)
	}
}
