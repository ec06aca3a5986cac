// internal/handler/websocket_types.go
package handler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"printer-service/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	// busID is the event bus subscription feeding this client
	busID uuid.UUID

	mu            sync.RWMutex
	subscriptions map[model.EventType]bool
}

// subscribe adds topic to the client filter
func (c *Client) subscribe(topic model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[model.EventType]bool)
	}
	c.subscriptions[topic] = true
}

func (c *Client) unsubscribe(topic model.EventType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, topic)
}

// wants reports whether the client receives events of topic. A client
// without subscriptions receives everything.
func (c *Client) wants(topic model.EventType) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions) == 0 || c.subscriptions[topic]
}

// Topics returns the subscribed topics
func (c *Client) Topics() []model.EventType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]model.EventType, 0, len(c.subscriptions))
	for t := range c.subscriptions {
		topics = append(topics, t)
	}
	return topics
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// TopicRequest is the data of subscribe and unsubscribe messages
type TopicRequest struct {
	Topic string `json:"topic"`
}

// ClientRegistry tracks connected WebSocket clients
type ClientRegistry struct {
	clients map[string]*Client
	mutex   sync.RWMutex
}

// NewClientRegistry creates an empty registry
func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client)}
}

// Register registers a new client
func (r *ClientRegistry) Register(client *Client) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.clients[client.ID] = client
}

// Unregister removes a client and reports whether it was registered
func (r *ClientRegistry) Unregister(client *Client) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.clients[client.ID]; !ok {
		return false
	}
	delete(r.clients, client.ID)
	return true
}

// GetStats returns connection statistics
func (r *ClientRegistry) GetStats() *ConnectionStats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(r.clients),
		ByTopic:          make(map[string]int),
		Clients:          make([]*Client, 0, len(r.clients)),
	}

	for _, client := range r.clients {
		topics := client.Topics()
		if len(topics) == 0 {
			stats.ByTopic["all"]++
		}
		for _, t := range topics {
			stats.ByTopic[string(t)]++
		}
		stats.Clients = append(stats.Clients, client)
	}

	return stats
}

// ConnectionStats represents connection statistics
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ByTopic          map[string]int `json:"by_topic"`
	Clients          []*Client      `json:"clients"`
}
