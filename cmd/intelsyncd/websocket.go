// WebSocket event feed: every record lifecycle event is broadcast to
// connected clients as a JSON envelope.
package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jcarville/intelsync/internal/events"
	"github.com/jcarville/intelsync/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local operator consoles only.
		return true
	},
}

// Envelope wraps every message pushed to clients.
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Hub maintains active client connections and fans events out to them.
type Hub struct {
	mu        sync.Mutex
	clients   map[*client]struct{}
	broadcast chan []byte
	done      chan struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub starts a hub and returns it.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[*client]struct{}),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

// Bridge subscribes the hub to the notifier so every published event is
// pushed to connected clients. Returns the unsubscribe function.
func (h *Hub) Bridge(notifier *events.Notifier) func() {
	return notifier.SubscribeAll(func(ev events.Event) {
		h.Send(string(ev.Type), ev.Payload)
	})
}

// Send broadcasts one envelope to all clients. Messages to slow clients are
// dropped with the connection.
func (h *Hub) Send(eventType string, data interface{}) {
	raw, err := json.Marshal(Envelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		logging.Error("failed to encode websocket envelope", err,
			map[string]interface{}{"type": eventType})
		return
	}
	select {
	case h.broadcast <- raw:
	case <-h.done:
	}
}

// Close disconnects all clients and stops the hub.
func (h *Hub) Close() {
	close(h.done)
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer: drop the connection rather than block
					// the feed.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Debug("websocket client connected", map[string]interface{}{"clients": n})
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Debug("websocket client disconnected", map[string]interface{}{"clients": n})
}

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// readPump drains client messages; the feed is one-way, so everything read
// is discarded, but the pump keeps pong handling alive.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades the connection and attaches it to the hub.
func handleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
			return
		}
		c := &client{conn: conn, send: make(chan []byte, 256), hub: hub}
		hub.add(c)
		go c.writePump()
		go c.readPump()
	}
}
