// internal/handler/websocket_types.go
package handler

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ffb-control-service/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	ID          string          `json:"id"`
	Connection  *websocket.Conn `json:"-"`
	Send        chan []byte     `json:"-"`
	UserAgent   string          `json:"user_agent"`
	RemoteAddr  string          `json:"remote_addr"`
	ConnectedAt time.Time       `json:"connected_at"`

	mutex         sync.RWMutex
	subscriptions map[string]bool
}

// Subscribe adds a topic. A topic matches an event type exactly or as its
// dotted prefix, so "settings" matches "settings.applied".
func (c *Client) Subscribe(topic string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.subscriptions == nil {
		c.subscriptions = make(map[string]bool)
	}
	c.subscriptions[topic] = true
}

// Unsubscribe removes a topic
func (c *Client) Unsubscribe(topic string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.subscriptions, topic)
}

// Topics lists the subscribed topics
func (c *Client) Topics() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	return topics
}

// Wants reports whether the client receives events of eventType. Clients
// without subscriptions receive everything except torque samples.
func (c *Client) Wants(eventType model.EventType) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if len(c.subscriptions) == 0 {
		return eventType != model.EventTelemetryTorque
	}
	name := string(eventType)
	for topic := range c.subscriptions {
		if name == topic || strings.HasPrefix(name, topic+".") {
			return true
		}
	}
	return false
}

// WebSocketMessage represents a WebSocket message
type WebSocketMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ConnectionManager manages WebSocket connections
type ConnectionManager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	manager := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	go manager.run()
	return manager
}

// run starts the connection manager
func (cm *ConnectionManager) run() {
	for {
		select {
		case client := <-cm.register:
			cm.mutex.Lock()
			cm.clients[client.ID] = client
			cm.mutex.Unlock()

		case client := <-cm.unregister:
			cm.mutex.Lock()
			if _, ok := cm.clients[client.ID]; ok {
				delete(cm.clients, client.ID)
				close(client.Send)
			}
			cm.mutex.Unlock()
		}
	}
}

// Register registers a new client
func (cm *ConnectionManager) Register(client *Client) {
	cm.register <- client
}

// Unregister unregisters a client
func (cm *ConnectionManager) Unregister(client *Client) {
	cm.unregister <- client
}

// Broadcast queues message for every client receiving eventType and returns
// the IDs of clients whose queue was full. The manager lock is held while
// sending so a client cannot be closed mid-send.
func (cm *ConnectionManager) Broadcast(eventType model.EventType, message []byte) []string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var dropped []string
	for _, client := range cm.clients {
		if !client.Wants(eventType) {
			continue
		}
		select {
		case client.Send <- message:
		default:
			dropped = append(dropped, client.ID)
		}
	}
	return dropped
}

// GetStats returns connection statistics
func (cm *ConnectionManager) GetStats() *ConnectionStats {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := &ConnectionStats{
		TotalConnections: len(cm.clients),
		ByTopic:          make(map[string]int),
		Clients:          make([]*Client, 0, len(cm.clients)),
	}

	for _, client := range cm.clients {
		for _, topic := range client.Topics() {
			stats.ByTopic[topic]++
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
