// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"printer-service/internal/config"
	"printer-service/internal/events"
	"printer-service/internal/model"
	"printer-service/internal/service"
	"printer-service/internal/utils"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

var knownTopics = []model.EventType{
	model.EventStateChanged,
	model.EventResponse,
	model.EventCommandCompleted,
	model.EventSerialTrace,
}

// WebSocketHandler streams event bus traffic to WebSocket clients
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	clients        *ClientRegistry
	bus            *events.Bus
	printerService *service.PrinterService
	logger         *utils.ServiceLogger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	bus *events.Bus,
	printerService *service.PrinterService,
	security *config.SecurityConfig,
	logger *zap.Logger,
) *WebSocketHandler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" ||
				slices.Contains(security.AllowedOrigins, "*") ||
				slices.Contains(security.AllowedOrigins, origin)
		},
	}

	return &WebSocketHandler{
		upgrader:       upgrader,
		clients:        NewClientRegistry(),
		bus:            bus,
		printerService: printerService,
		logger:         utils.NewServiceLogger(logger, "websocket-handler"),
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/events", h.HandleEventConnection)
}

// HandleEventConnection upgrades the request and streams events until the client leaves
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	busID, feed := h.bus.Subscribe()
	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, 256),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
		busID:       busID,
	}

	for _, topic := range c.QueryArray("topic") {
		if t, ok := parseTopic(topic); ok {
			client.subscribe(t)
		}
	}

	h.clients.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      h.printerService.Status(),
		Timestamp: time.Now(),
	})

	go h.pumpEvents(client, feed)
	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// pumpEvents forwards bus events to the client; it owns closing client.Send
func (h *WebSocketHandler) pumpEvents(client *Client, feed <-chan model.Event) {
	defer close(client.Send)

	for event := range feed {
		if !client.wants(event.Type) {
			continue
		}
		h.sendMessage(client, &WebSocketMessage{
			Type:      "event",
			Data:      event,
			Timestamp: event.Timestamp,
		})
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		if h.clients.Unregister(client) {
			h.bus.Unsubscribe(client.busID)
		}
		client.Connection.Close()
		h.logger.Info("Event WebSocket client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadDeadline(time.Now().Add(pongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(pongWait))
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

		var message struct {
			Type      string          `json:"type"`
			Data      json.RawMessage `json:"data"`
			RequestID string          `json:"request_id"`
		}
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "", "invalid message")
			continue
		}

		h.handleClientMessage(client, message.Type, message.Data, message.RequestID)
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
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
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
			client.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, msgType string, data json.RawMessage, requestID string) {
	switch msgType {
	case "subscribe", "unsubscribe":
		var req TopicRequest
		if err := json.Unmarshal(data, &req); err != nil {
			h.sendError(client, requestID, "topic is required")
			return
		}
		topic, ok := parseTopic(req.Topic)
		if !ok {
			h.sendError(client, requestID, "unknown topic: "+req.Topic)
			return
		}

		if msgType == "subscribe" {
			client.subscribe(topic)
		} else {
			client.unsubscribe(topic)
		}
		h.logger.Debug("Client subscription changed",
			zap.String("client_id", client.ID),
			zap.String("action", msgType),
			zap.String("topic", string(topic)),
		)

		h.sendMessage(client, &WebSocketMessage{
			Type:      msgType + "d",
			Data:      map[string]interface{}{"topic": topic, "topics": client.Topics()},
			Timestamp: time.Now(),
			RequestID: requestID,
		})

	case "status":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "status",
			Data:      h.printerService.Status(),
			Timestamp: time.Now(),
			RequestID: requestID,
		})

	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: requestID,
		})

	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", msgType),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, requestID, "unknown message type: "+msgType)
	}
}

func parseTopic(s string) (model.EventType, bool) {
	t := model.EventType(s)
	return t, slices.Contains(knownTopics, t)
}

// sendMessage queues a message without blocking; full clients drop it.
// Callers are the client's read goroutine before it unsubscribes and the
// event pump, so Send is never written after it is closed.
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
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      "error",
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.clients.GetStats()
}
