package bus

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/overcode/overcode/internal/types"
)

// BroadcastBufferSize bounds how many pending broadcasts can queue
// before a slow client is dropped.
const BroadcastBufferSize = 256

// MessageType tags what a WSMessage carries.
type MessageType string

const (
	WSTypeMonitorState MessageType = "monitor_state"
	WSTypeAttention    MessageType = "attention"
)

// WSMessage is the envelope every browser client receives.
type WSMessage struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

// WSClient is one connected dashboard browser.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans MonitorState snapshots and attention bells out to every
// connected dashboard browser over WebSocket, bridging the NATS-borne
// bus.Client to the Control API's HTTP server.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan []byte
}

// NewHub constructs an idle Hub; call Run in its own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan []byte, BroadcastBufferSize),
	}
}

// Run drives the hub's register/unregister/broadcast loop. It never
// returns; it lives as long as the goroutine that calls it.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastJSON marshals msg and queues it for every client.
func (h *Hub) BroadcastJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.broadcast <- data
}

// BroadcastMonitorState pushes one tick snapshot to every client.
func (h *Hub) BroadcastMonitorState(state types.MonitorState) {
	h.BroadcastJSON(WSMessage{Type: WSTypeMonitorState, Data: state})
}

// BroadcastAttention pushes one coalesced attention bell to every
// client.
func (h *Hub) BroadcastAttention(message string) {
	h.BroadcastJSON(WSMessage{Type: WSTypeAttention, Data: map[string]string{"message": message}})
}

// ClientCount reports how many browsers are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a WebSocket connection and
// registers it with the hub. Intended to back the Control API's
// /api/ws route.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &WSClient{hub: h, conn: conn, send: make(chan []byte, BroadcastBufferSize)}
	h.register <- client

	go client.writePump()
	go client.readPump()
	return nil
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *WSClient) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
