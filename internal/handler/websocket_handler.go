// internal/handler/websocket_handler.go
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pos-sync-service/internal/model"
	"pos-sync-service/internal/service"
	"pos-sync-service/internal/utils"
)

const (
	readDeadline    = 60 * time.Second
	pingInterval    = 54 * time.Second
	writeDeadline   = 10 * time.Second
	sendBufferSize  = 64
	eventBufferSize = 64
	forceSyncLimit  = 2 * time.Minute
)

// WebSocketHandler streams sync status, network status and alerts to the
// cashier UI and accepts a few commands back.
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	connections *ConnectionManager
	engine      *service.SyncEngine
	monitor     NetworkMonitor
	logger      *utils.ServiceLogger

	unsubscribe []func()
	pumpDone    chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
}

// NewWebSocketHandler creates a new WebSocket handler. An empty
// allowedOrigins accepts every origin.
func NewWebSocketHandler(
	engine *service.SyncEngine,
	monitor NetworkMonitor,
	allowedOrigins []string,
	logger *zap.Logger,
) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[origin] = true
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || origins[origin]
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &WebSocketHandler{
		upgrader:    upgrader,
		connections: NewConnectionManager(),
		engine:      engine,
		monitor:     monitor,
		logger:      utils.NewServiceLogger(logger, "websocket-handler"),
		ctx:         ctx,
		cancel:      cancel,
	}

	statusCh, unsubscribeStatus := engine.SubscribeStatus(eventBufferSize)
	networkCh, unsubscribeNetwork := monitor.Subscribe(eventBufferSize)
	alertCh, unsubscribeAlerts := engine.SubscribeAlerts(eventBufferSize)
	h.unsubscribe = []func(){unsubscribeStatus, unsubscribeNetwork, unsubscribeAlerts}
	h.pumpDone = make(chan struct{})

	go h.pumpEvents(statusCh, networkCh, alertCh)

	return h
}

// pumpEvents fans snapshots out to the connected clients until every
// subscription is closed or the handler shuts down.
func (h *WebSocketHandler) pumpEvents(
	statuses <-chan model.SyncStatus,
	networks <-chan model.NetworkStatus,
	alerts <-chan model.Alert,
) {
	defer close(h.pumpDone)

	for statuses != nil || networks != nil || alerts != nil {
		select {
		case <-h.ctx.Done():
			return
		case status, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			h.broadcast(MessageSyncStatus, status)
		case status, ok := <-networks:
			if !ok {
				networks = nil
				continue
			}
			h.broadcast(MessageNetworkStatus, status)
		case alert, ok := <-alerts:
			if !ok {
				alerts = nil
				continue
			}
			h.broadcast(MessageAlert, alert)
		}
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/status", h.HandleStatusConnection)
}

// Close detaches from the publishers, cancels pending manual syncs and
// disconnects every client.
func (h *WebSocketHandler) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		for _, unsubscribe := range h.unsubscribe {
			unsubscribe()
		}
		<-h.pumpDone
		h.connections.Close()
	})
}

// HandleStatusConnection upgrades the request into a status stream
func (h *WebSocketHandler) HandleStatusConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, sendBufferSize),
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}

	if !h.connections.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	h.logger.Info("Status stream client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageSyncStatus,
		Data:      h.engine.GetSyncStatus(),
		Timestamp: time.Now(),
	})
	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageNetworkStatus,
		Data:      h.monitor.Status(),
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
		h.logger.Info("Status stream client disconnected", zap.String("client_id", client.ID))
	}()

	client.Connection.SetReadLimit(4096)
	client.Connection.SetReadDeadline(time.Now().Add(readDeadline))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(readDeadline))
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
			h.sendError(client, "", "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(writeDeadline))
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
			client.Connection.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case MessagePing:
		h.sendMessage(client, &WebSocketMessage{
			Type:      MessagePong,
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case MessageVisibility:
		data, ok := message.Data.(map[string]interface{})
		if !ok {
			h.sendError(client, message.RequestID, "visibility requires data.visible")
			return
		}
		visible, ok := data["visible"].(bool)
		if !ok {
			h.sendError(client, message.RequestID, "visibility requires data.visible")
			return
		}
		h.monitor.NotifyVisible(visible)
	case MessageForceSync:
		go h.forceSync(client, message.RequestID)
	default:
		h.logger.Warn("Unknown message type",
			zap.String("type", message.Type),
			zap.String("client_id", client.ID),
		)
		h.sendError(client, message.RequestID, "unknown message type: "+message.Type)
	}
}

func (h *WebSocketHandler) forceSync(client *Client, requestID string) {
	ctx, cancel := context.WithTimeout(h.ctx, forceSyncLimit)
	defer cancel()

	result, err := h.engine.ForceSync(ctx)

	data := map[string]interface{}{
		"success": err == nil,
		"result":  result,
	}
	if err != nil {
		data["error"] = err.Error()
	}

	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageSyncResult,
		Data:      data,
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

	if !h.connections.Send(client, messageBytes) {
		h.logger.Warn("Client gone or send channel full, dropping message",
			zap.String("client_id", client.ID),
			zap.String("type", message.Type),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, requestID, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type:      MessageError,
		Data:      map[string]interface{}{"error": errorMsg},
		Timestamp: time.Now(),
		RequestID: requestID,
	})
}

// broadcast sends a message to every connected client
func (h *WebSocketHandler) broadcast(messageType string, data interface{}) {
	messageBytes, err := json.Marshal(&WebSocketMessage{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
		return
	}

	if dropped := h.connections.Broadcast(messageBytes); dropped > 0 {
		h.logger.Warn("Client send channel full during broadcast",
			zap.String("type", messageType),
			zap.Int("dropped", dropped),
		)
	}
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}
