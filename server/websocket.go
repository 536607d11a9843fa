package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// writeWait bounds a single write to a client.
const writeWait = 5 * time.Second

// Client is one connected WebSocket consumer. Writes are serialized since
// both request handlers and broadcasts write to the same connection.
type Client struct {
	ID         string
	RemoteAddr string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func newClient(conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		ID:         uuid.NewString(),
		RemoteAddr: remoteAddr,
		conn:       conn,
	}
}

// Send writes v as a JSON text message.
func (c *Client) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ClientManager manages WebSocket client connections and broadcasting.
type ClientManager struct {
	clients map[string]*Client
	mu      sync.RWMutex
	logger  *slog.Logger
}

// NewClientManager creates a new ClientManager instance.
func NewClientManager(logger *slog.Logger) *ClientManager {
	return &ClientManager{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Register adds a new client connection.
func (cm *ClientManager) Register(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.clients[c.ID] = c
}

// Unregister removes a client connection.
func (cm *ClientManager) Unregister(c *Client) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.clients, c.ID)
}

// Count returns the number of connected clients.
func (cm *ClientManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

// Broadcast sends message to every client. Clients that fail to receive it
// are closed and dropped.
func (cm *ClientManager) Broadcast(message any) {
	cm.mu.RLock()
	clients := make([]*Client, 0, len(cm.clients))
	for _, c := range cm.clients {
		clients = append(clients, c)
	}
	cm.mu.RUnlock()

	for _, c := range clients {
		if err := c.Send(message); err != nil {
			cm.logger.Warn("websocket write failed, dropping client", "client_id", c.ID, "error", err)
			c.Close()
			cm.Unregister(c)
		}
	}
}

// CloseAll closes all client connections.
func (cm *ClientManager) CloseAll() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for id, c := range cm.clients {
		c.Close()
		delete(cm.clients, id)
	}
}
