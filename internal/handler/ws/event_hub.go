package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"voicelink-backend/internal/domain"
	"voicelink-backend/pkg/logger"
	"voicelink-backend/pkg/metrics"
)

const (
	pingInterval = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// Call event types pushed to connected clients
const (
	EventTypeIncoming      = "call_incoming"
	EventTypeRinging       = "call_ringing"
	EventTypeAccepted      = "call_accepted"
	EventTypeDeclined      = "call_declined"
	EventTypeMissed        = "call_missed"
	EventTypeEnded         = "call_ended"
	EventTypeParticipant   = "participant_updated"
	EventTypeRecording     = "recording_state"
	EventTypeTranscription = "transcription_ready"
)

// CallEventMessage is the payload pushed over WebSocket when a call's
// state changes. TargetID routes the message to one user's devices.
type CallEventMessage struct {
	Type      string            `json:"type"`
	CallID    uuid.UUID         `json:"call_id"`
	SenderID  uuid.UUID         `json:"sender_id,omitempty"`
	TargetID  uuid.UUID         `json:"target_id"`
	Status    domain.CallStatus `json:"status,omitempty"`
	Detail    string            `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventHub fans call lifecycle events out to users' WebSocket connections.
// Events pass through Redis Pub/Sub so every service instance sees them
// regardless of which instance holds the client connection.
type EventHub struct {
	// Registered clients per user (one user can have several devices)
	users map[uuid.UUID]map[*EventClient]bool

	// Cancel functions for per-user Redis subscriptions
	subscriptionCancels map[uuid.UUID]context.CancelFunc

	redisClient *redis.Client

	mu sync.RWMutex

	register   chan *EventClient
	unregister chan *EventClient
	broadcast  chan *CallEventMessage

	maxConnections int
	semaphore      chan struct{}

	clientCount int
	metrics     *metrics.Metrics
}

// SetMetrics wires the hub's instrumentation. Optional.
func (h *EventHub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// EventClient represents one WebSocket connection of a user
type EventClient struct {
	hub    *EventHub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
}

// GetAllowedOrigins returns allowed WebSocket origins from environment or defaults
func GetAllowedOrigins() map[string]bool {
	allowedOrigins := map[string]bool{
		"http://localhost:3000": true,
		"http://localhost:8080": true,
		"http://127.0.0.1:3000": true,
		"http://127.0.0.1:8080": true,
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	return allowedOrigins
}

var eventUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Reject empty origins - require explicit origin for security
			return false
		}

		allowedOrigins := GetAllowedOrigins()
		for allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}
		return false
	},
}

// NewEventHub creates a new call event hub
func NewEventHub(redisClient *redis.Client) *EventHub {
	maxConns := 1000
	if val := os.Getenv("WS_MAX_EVENT_CONNECTIONS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			maxConns = n
		}
	}

	hub := &EventHub{
		users:               make(map[uuid.UUID]map[*EventClient]bool),
		subscriptionCancels: make(map[uuid.UUID]context.CancelFunc),
		redisClient:         redisClient,
		register:            make(chan *EventClient),
		unregister:          make(chan *EventClient),
		broadcast:           make(chan *CallEventMessage, 256),
		maxConnections:      maxConns,
		semaphore:           make(chan struct{}, maxConns),
	}

	go hub.run()

	return hub
}

// Publish sends a call event to a user via Redis so that every instance
// holding one of their connections delivers it. When Redis is not
// configured the event is delivered to local connections only.
func (h *EventHub) Publish(ctx context.Context, message *CallEventMessage) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	if h.redisClient == nil {
		h.broadcast <- message
		return nil
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal call event: %w", err)
	}

	channel := fmt.Sprintf("user:events:%s", message.TargetID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish call event: %w", err)
	}
	return nil
}

// run handles hub operations
func (h *EventHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.users[client.userID] == nil {
				h.users[client.userID] = make(map[*EventClient]bool)

				if h.redisClient != nil {
					ctx, cancel := context.WithCancel(context.Background())
					h.subscriptionCancels[client.userID] = cancel
					go h.subscribeToUser(ctx, client.userID)
				}
			}
			h.users[client.userID][client] = true
			h.clientCount++
			if h.metrics != nil {
				h.metrics.SetWebSocketConnections(h.clientCount)
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.users[client.userID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					client.cancel()
					h.clientCount--
					if h.metrics != nil {
						h.metrics.SetWebSocketConnections(h.clientCount)
					}

					if len(clients) == 0 {
						if cancel, ok := h.subscriptionCancels[client.userID]; ok {
							cancel()
							delete(h.subscriptionCancels, client.userID)
						}
						delete(h.users, client.userID)
					}
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.users[message.TargetID]; ok {
				messageJSON, _ := json.Marshal(message)
				for client := range clients {
					select {
					case client.send <- messageJSON:
						if h.metrics != nil {
							h.metrics.RecordWebSocketMessage(message.Type, "out")
						}
					default:
						close(client.send)
						delete(clients, client)
						h.clientCount--
						if h.metrics != nil {
							h.metrics.SetWebSocketConnections(h.clientCount)
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribeToUser subscribes to Redis Pub/Sub for one user's events
func (h *EventHub) subscribeToUser(ctx context.Context, userID uuid.UUID) {
	channel := fmt.Sprintf("user:events:%s", userID)

	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("Failed to subscribe to Redis channel",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}
			var event CallEventMessage
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("Failed to unmarshal Redis message",
					zap.String("user_id", userID.String()),
					zap.Error(err))
				continue
			}

			h.broadcast <- &event
		}
	}
}

// ServeWS handles WebSocket requests for call events
func (h *EventHub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
		defer func() {
			<-h.semaphore
		}()
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	// Get user ID from context (set by auth middleware)
	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(401, gin.H{"error": "unauthorized"})
		return
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(500, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := eventUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &EventClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
		ctx:    ctx,
		cancel: cancel,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump drains the connection; clients only receive events, so
// anything they send besides pongs is discarded.
func (c *EventClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pingInterval))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}
	}
}

// writePump writes messages to WebSocket
func (c *EventClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
