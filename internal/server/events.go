package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/audiobridge/internal/audio"
)

const (
	writeWait       = 10 * time.Second
	clientQueueSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts clients without an Origin header (non-browser) and
// browser pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	slog.Warn("Rejected websocket from foreign origin", "origin", origin, "host", r.Host)
	return false
}

// eventClient is one websocket subscriber with its own writer goroutine
type eventClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *eventClient) close() {
	c.once.Do(func() { close(c.send) })
}

// EventHub fans recording session events out to websocket clients
type EventHub struct {
	mutex   sync.RWMutex
	clients map[*eventClient]struct{}
	closed  bool
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[*eventClient]struct{})}
}

// OnSessionEvent broadcasts e. Slow clients drop events rather than block
// the session manager.
func (h *EventHub) OnSessionEvent(e audio.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to encode session event", "type", e.Type, "error", err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slog.Warn("Dropping event for slow websocket client", "remote", c.conn.RemoteAddr().String(), "type", e.Type)
		}
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *EventHub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *EventHub) register(c *eventClient) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *EventHub) unregister(c *eventClient) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := &eventClient{conn: conn, send: make(chan []byte, clientQueueSize)}
	if !h.register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	slog.Debug("Websocket client connected", "remote", r.RemoteAddr)

	go h.writeLoop(client)

	// reads only detect disconnects; clients send nothing meaningful
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(client)
	slog.Debug("Websocket client disconnected", "remote", r.RemoteAddr)
}

func (h *EventHub) writeLoop(c *eventClient) {
	defer c.conn.Close()

	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.unregister(c)
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
