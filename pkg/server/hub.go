package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossstats"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

const (
	// sendBuffer is the per-client queue length; a client that falls this far
	// behind is dropped.
	sendBuffer      = 256
	broadcastBuffer = 100
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	writeWait       = 10 * time.Second
	wsBufferSize    = 1024
)

var errHubStopped = errors.New("event hub is not running")

// Message is the websocket payload for one engine event.
type Message struct {
	Type       window.EventKind      `json:"type"`
	Timestamp  string                `json:"timestamp"`
	Generation uint64                `json:"generation"`
	Start      int                   `json:"start"`
	End        int                   `json:"end"`
	Len        int                   `json:"len"`
	Stats      *lossstats.Statistics `json:"stats,omitempty"`
	Error      string                `json:"error,omitempty"`
}

func newMessage(ev window.Event) Message {
	msg := Message{
		Type:       ev.Kind,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Generation: ev.View.Generation,
		Start:      ev.View.Start,
		End:        ev.View.End,
		Len:        ev.View.Len,
	}

	if ev.View.Loaded {
		stats := ev.View.Stats
		msg.Stats = &stats
	}

	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}

	return msg
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans engine events out to websocket clients. One goroutine, Run, owns
// the client set; every client has its own writer goroutine.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	started    chan struct{}
	done       chan struct{}

	running atomic.Bool
	clients atomic.Int64
}

// NewHub creates a stopped hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  wsBufferSize,
			WriteBufferSize: wsBufferSize,
		},
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, broadcastBuffer),
		started:    make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	close(h.started)

	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	clients := make(map[*client]struct{})

	drop := func(c *client) {
		if _, ok := clients[c]; !ok {
			return
		}

		delete(clients, c)
		close(c.send)
		h.clients.Store(int64(len(clients)))
	}

	for {
		select {
		case <-ctx.Done():
			for c := range clients {
				drop(c)
			}

			return

		case c := <-h.register:
			clients[c] = struct{}{}
			h.clients.Store(int64(len(clients)))
			h.logger.DebugContext(ctx, "websocket client connected", "clients", len(clients))

		case c := <-h.unregister:
			drop(c)
			h.logger.DebugContext(ctx, "websocket client disconnected", "clients", len(clients))

		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
				default:
					h.logger.WarnContext(ctx, "websocket client too slow, dropping")
					drop(c)
				}
			}
		}
	}
}

// Started is closed once Run is accepting clients.
func (h *Hub) Started() <-chan struct{} {
	return h.started
}

// Running reports whether Run is active.
func (h *Hub) Running() bool {
	return h.running.Load()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.clients.Load())
}

// Ready is a readiness check that fails while the hub is not running.
func (h *Hub) Ready(context.Context) error {
	if !h.Running() {
		return errHubStopped
	}

	return nil
}

// Publish queues ev for every client. It never blocks, since it runs as a
// manager observer; when the queue is full the event is dropped.
func (h *Hub) Publish(ev window.Event) {
	data, err := json.Marshal(newMessage(ev))
	if err != nil {
		h.logger.Error("encode websocket message", "error", err)

		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("websocket broadcast queue full, event dropped", "type", ev.Kind)
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(rw http.ResponseWriter, hr *http.Request) {
	if !h.Running() {
		http.Error(rw, errHubStopped.Error(), http.StatusServiceUnavailable)

		return
	}

	conn, err := h.upgrader.Upgrade(rw, hr, nil)
	if err != nil {
		// Upgrade has already answered the request.
		h.logger.WarnContext(hr.Context(), "websocket upgrade failed", "error", err)

		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()

		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump discards client input and unregisters on disconnect.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}

		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket read failed", "error", err)
			}

			return
		}
	}
}

// writePump sends queued messages, one frame each, and keeps the connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			err := c.conn.WriteMessage(websocket.TextMessage, msg)
			if err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			if err != nil {
				return
			}
		}
	}
}
