// Package hub provides connection management for dashboard WebSocket clients.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/notify"
)

// Connection represents a single WebSocket connection.
type Connection struct {
	ID    string
	Conn  *websocket.Conn
	Send  chan []byte
	mu    sync.Mutex

	roomsMu sync.Mutex
	rooms   map[string]bool
}

// Hub manages all WebSocket connections and the rooms they joined.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// Rooms maps room name to set of connection IDs
	rooms map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection

	// Broadcast channel for sending to a room
	broadcast chan *RoomMessage

	logger zerolog.Logger
	mu     sync.RWMutex
}

var _ notify.Sink = (*Hub)(nil)

// RoomMessage is used to broadcast a message to a room.
type RoomMessage struct {
	Room string
	Data []byte
}

// NewHub creates a new Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *RoomMessage, 256),
		logger:      logger.With().Str("component", "hub").Logger(),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug().Str("conn", conn.ID).Msg("connection registered")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				conn.roomsMu.Lock()
				for room := range conn.rooms {
					h.leaveLocked(conn.ID, room)
				}
				conn.roomsMu.Unlock()
				close(conn.Send)
			}
			h.mu.Unlock()
			h.logger.Debug().Str("conn", conn.ID).Msg("connection unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			for connID := range h.rooms[msg.Room] {
				if conn, exists := h.connections[connID]; exists {
					select {
					case conn.Send <- msg.Data:
					default:
						h.logger.Warn().Str("conn", connID).Msg("connection buffer full, closing")
						go h.Unregister(conn)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection. It must be registered before use.
func (h *Hub) NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ID:    uuid.New().String(),
		Conn:  ws,
		Send:  make(chan []byte, 256),
		rooms: make(map[string]bool),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister unregisters a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Join adds a connection to a room.
func (h *Hub) Join(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]bool)
	}
	h.rooms[room][conn.ID] = true
	conn.roomsMu.Lock()
	conn.rooms[room] = true
	conn.roomsMu.Unlock()
}

// Leave removes a connection from a room.
func (h *Hub) Leave(conn *Connection, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn.ID, room)
	conn.roomsMu.Lock()
	delete(conn.rooms, room)
	conn.roomsMu.Unlock()
}

func (h *Hub) leaveLocked(connID, room string) {
	if h.rooms[room] == nil {
		return
	}
	delete(h.rooms[room], connID)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast queues data for every connection in room. It never blocks.
func (h *Hub) Broadcast(room string, data []byte) error {
	select {
	case h.broadcast <- &RoomMessage{Room: room, Data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Publish implements notify.Sink.
func (h *Hub) Publish(_ context.Context, room, event string, payload any) error {
	data, err := json.Marshal(notify.NewEnvelope(room, event, payload))
	if err != nil {
		return err
	}
	return h.Broadcast(room, data)
}

// SendToConnection sends a message to a specific connection.
func (h *Hub) SendToConnection(conn *Connection, data []byte) error {
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendJSONToConnection sends a JSON message to a specific connection.
func (h *Hub) SendJSONToConnection(conn *Connection, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return h.SendToConnection(conn, data)
}

// GetConnectionCount returns the number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the rooms a connection has joined.
func (c *Connection) Rooms() []string {
	c.roomsMu.Lock()
	defer c.roomsMu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	return out
}

// WriteMessage writes a message to the connection with proper locking.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// SetWriteDeadline sets the write deadline for the connection.
func (c *Connection) SetWriteDeadline(t time.Time) error {
	return c.Conn.SetWriteDeadline(t)
}

// SetReadDeadline sets the read deadline for the connection.
func (c *Connection) SetReadDeadline(t time.Time) error {
	return c.Conn.SetReadDeadline(t)
}

// Close closes the connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ErrBufferFull is returned when a send buffer is full.
var ErrBufferFull = &BufferFullError{}

// BufferFullError represents a buffer full error.
type BufferFullError struct{}

func (e *BufferFullError) Error() string {
	return "send buffer full"
}
