package notifier

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paperbot/engine/internal/logger"
)

// wsMessage is the wire shape pushed to every connected client, mirroring
// a WebSocketMessage{Type, Timestamp, Data} envelope.
type wsMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type wsClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan wsMessage
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketHub pushes a live event stream to connected dashboards: every
// notifier Event is
// broadcast to all connected dashboards as it happens.
type WebSocketHub struct {
	clients    map[*wsClient]bool
	broadcast  chan wsMessage
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
	log        *logger.Logger
}

func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan wsMessage, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		log:        logger.NewLogger("notify_ws"),
	}
}

// Run must be started once in its own goroutine before HandleWebSocket is
// wired into an HTTP mux.
func (h *WebSocketHub) Run() {
	h.log.Info("websocket hub started")
	for {
		select {
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
					// slow client, drop rather than block the hub
					h.mu.RUnlock()
					h.mu.Lock()
					close(c.send)
					delete(h.clients, c)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// HandleWebSocket upgrades an incoming HTTP request to a websocket
// connection and registers it with the hub.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}
	client := &wsClient{hub: h, conn: conn, send: make(chan wsMessage, 32)}
	h.register <- client
	go client.writePump()
	go client.readPump()
}

func (c *wsClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *WebSocketHub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send implements Sink, broadcasting evt to every connected client.
func (h *WebSocketHub) Send(evt Event) {
	msg := wsMessage{
		Type:      string(evt.Type),
		Timestamp: evt.Timestamp,
		Data: map[string]interface{}{
			"symbol": evt.Symbol,
			"side":   evt.Side,
			"pnl":    evt.PnL.String(),
		},
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("websocket broadcast channel full, dropping event", "type", string(evt.Type))
	}
}
