package main

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"veloz/internal/bridge"
	"veloz/internal/logging"
)

// wsClient is one connected WebSocket peer with a bounded outbound buffer;
// messages for a slow reader are dropped rather than allowed to stall the
// hub, and the reader itself stays registered.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// wsHub broadcasts bridge events to WebSocket peers as an alternate
// transport to the SSE /events endpoint, adapted from the teacher's
// internal/websocket.Hub (register/unregister/broadcast select loop,
// per-client buffered channel, drop-on-full) with the missing client
// read/write pumps authored here in the same idiom. A full client buffer
// drops the message only; clients are unregistered when their read pump
// sees the connection end.
type wsHub struct {
	log *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]bool

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
}

func newWSHub(log *logging.Logger) *wsHub {
	return &wsHub{
		log:        log,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 256),
	}
}

// run is the hub's single event loop; it must be started exactly once.
func (h *wsHub) run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.log.Warn("websocket client buffer full, dropping")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeToBridge mirrors every bridge event onto the hub's broadcast
// channel; the returned unsubscribe func should run when the hub stops.
func (h *wsHub) subscribeToBridge(br *bridge.Bridge) (unsubscribe func()) {
	id := br.SubscribeAll(func(ev *bridge.Event) {
		body, err := json.Marshal(struct {
			Type    bridge.EventType `json:"type"`
			Payload any              `json:"payload"`
		}{Type: ev.Type, Payload: ev.Payload})
		if err != nil {
			return
		}
		select {
		case h.broadcast <- body:
		default:
		}
	})
	return func() { br.Unsubscribe(id) }
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if host, _, err := net.SplitHostPort(r.Host); err == nil && strings.HasPrefix(host, "127.0.0.1") {
			return true
		}
		return origin == "http://localhost:5173" || origin == "https://localhost:5173"
	},
}

// handleWSEvents upgrades the connection and streams broadcast bridge
// events to the client until it disconnects.
func (h *wsHub) handleWSEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, 64)}
	h.register <- c

	go c.writePump()
	c.readPump(h)
}

// readPump discards client frames (this endpoint is publish-only) and
// exists to detect disconnects and propagate close control frames.
func (c *wsClient) readPump(h *wsHub) {
	defer func() {
		h.unregister <- c
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
