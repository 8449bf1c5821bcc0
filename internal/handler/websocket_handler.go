// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ffb-control-service/internal/model"
	"ffb-control-service/internal/service"
	"ffb-control-service/internal/utils"
)

const (
	pingPeriod   = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// WebSocketHandler streams service events to WebSocket clients
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	eventBus    *EventBus
	state       *service.DeviceState
	settings    *service.SettingsService
	logger      *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	eventBus *EventBus,
	state *service.DeviceState,
	settings *service.SettingsService,
	logger *zap.Logger,
) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// The API only listens on the local machine
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		eventBus:    eventBus,
		state:       state,
		settings:    settings,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
}

// Start subscribes to the event bus and forwards events to clients until
// ctx is done or the bus stops
func (h *WebSocketHandler) Start(ctx context.Context) {
	events := h.eventBus.SubscribeAll()
	go h.forward(ctx, events)
}

func (h *WebSocketHandler) forward(ctx context.Context, events <-chan model.Event) {
	defer h.eventBus.Unsubscribe(events)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			h.broadcast(event.Type, &WebSocketMessage{
				Type:      "event",
				Data:      event,
				Timestamp: event.Timestamp,
			})
		}
	}
}

// HandleEventConnection upgrades the request and starts streaming events
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
	for _, topic := range c.QueryArray("topic") {
		client.Subscribe(topic)
	}

	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendStatus(client, "")

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(readTimeout))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			break
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.logger.Warn("Failed to parse WebSocket message",
				zap.Error(err),
				zap.String("client_id", client.ID),
			)
			h.sendError(client, "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe":
		if topic, ok := topicOf(message); ok {
			client.Subscribe(topic)
			h.sendMessage(client, &WebSocketMessage{
				Type:      "subscription_confirmed",
				Data:      map[string]interface{}{"topic": topic},
				Timestamp: time.Now(),
				RequestID: message.RequestID,
			})
		}
	case "unsubscribe":
		if topic, ok := topicOf(message); ok {
			client.Unsubscribe(topic)
		}
	case "status":
		h.sendStatus(client, message.RequestID)
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

func topicOf(message *WebSocketMessage) (string, bool) {
	data, ok := message.Data.(map[string]interface{})
	if !ok {
		return "", false
	}
	topic, ok := data["topic"].(string)
	return topic, ok && topic != ""
}

// sendStatus sends the active device and persistence state
func (h *WebSocketHandler) sendStatus(client *Client, requestID string) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "status",
		Data: map[string]interface{}{
			"device":       h.state.Current(),
			"demo":         h.state.IsDemoMode(),
			"capabilities": h.state.Capabilities(),
			"persistence":  h.settings.PersistenceSnapshot(),
		},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	select {
	case client.Send <- messageBytes:
	default:
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
	})
}

// broadcast sends message to every client subscribed to eventType
func (h *WebSocketHandler) broadcast(eventType model.EventType, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	for _, clientID := range h.connections.Broadcast(eventType, messageBytes) {
		h.logger.Warn("Client send channel full during broadcast",
			zap.String("client_id", clientID),
			zap.String("event_type", string(eventType)),
		)
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
