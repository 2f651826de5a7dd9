package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aaronlmathis/homemonitor/internal/metrics"
	"github.com/aaronlmathis/homemonitor/internal/series"
)

// Hub maintains the set of active clients and broadcasts refresh
// results to them. The Run goroutine owns the client set: it is the
// only goroutine that closes a client's send channel, so broadcasts
// and disconnects cannot race.
type Hub struct {
	logger *zap.Logger
	health *series.HealthMetrics

	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage

	ctx    context.Context
	cancel context.CancelFunc

	mu sync.RWMutex

	maxConnections int
}

type broadcastMessage struct {
	room string
	data []byte
}

// Client represents a WebSocket client
type Client struct {
	hub *Hub

	conn *websocket.Conn

	// Buffered channel of outbound messages
	send chan []byte

	id string

	// Room/topic the client is subscribed to
	room string
}

// Message represents a WebSocket message
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Room string      `json:"room,omitempty"`
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger, health *series.HealthMetrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		logger:         logger,
		health:         health,
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan broadcastMessage, 16),
		clients:        make(map[*Client]bool),
		ctx:            ctx,
		cancel:         cancel,
		maxConnections: 100,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	defer h.cancel()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()

			metrics.RecordWebSocketConnection(client.room)
			h.health.SetWSClientCount(int64(count))

			h.logger.Info("Client registered",
				zap.String("id", client.id),
				zap.String("room", client.room))

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()

			if ok {
				metrics.RecordWebSocketDisconnection(client.room)
				h.health.SetWSClientCount(int64(count))

				h.logger.Info("Client unregistered",
					zap.String("id", client.id),
					zap.String("room", client.room))
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// deliver fans a message out to every client in the room. Runs on the
// hub goroutine so dropping a slow client here cannot race with the
// unregister path.
func (h *Hub) deliver(message broadcastMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	dropped := 0
	sent := 0

	for client := range h.clients {
		if client.room != message.room {
			continue
		}

		select {
		case client.send <- message.data:
			sent++
		default:
			// Send buffer full; the client is not keeping up.
			h.logger.Warn("Removing slow WebSocket client",
				zap.String("clientId", client.id),
				zap.String("room", client.room))
			delete(h.clients, client)
			close(client.send)
			metrics.RecordWebSocketDisconnection(client.room)
			dropped++
		}
	}

	if dropped > 0 {
		h.health.SetWSClientCount(int64(len(h.clients)))
		h.logger.Info("WebSocket broadcast completed with dropped clients",
			zap.String("room", message.room),
			zap.Int("sent", sent),
			zap.Int("dropped", dropped))
	}
}

// BroadcastToRoom queues a message for all clients in a specific room.
// Messages queued after Stop are discarded.
func (h *Hub) BroadcastToRoom(room string, messageType string, data interface{}) {
	message := Message{
		Type: messageType,
		Data: data,
		Room: room,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- broadcastMessage{room: room, data: msgBytes}:
	case <-h.ctx.Done():
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS handles websocket requests from the peer
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, room string) {
	h.mu.RLock()
	totalConnections := len(h.clients)
	h.mu.RUnlock()

	if totalConnections >= h.maxConnections {
		h.logger.Warn("WebSocket connection rejected - connection limit reached",
			zap.Int("current", totalConnections),
			zap.Int("limit", h.maxConnections))
		http.Error(w, "Connection limit reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, 256),
		id:   uuid.New().String(),
		room: room,
	}

	select {
	case client.hub.register <- client:
	case <-h.ctx.Done():
		// Hub already stopped; nothing will ever drain register.
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the websocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("Unexpected WebSocket close", zap.Error(err))
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
