// -----------------------------------------------------------------------
// WebSocketHandler - Push channel for job lifecycle events
// -----------------------------------------------------------------------

package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the wire envelope for all push-channel messages
type WSMessage struct {
	Type    string      `json:"type"`
	JobID   string      `json:"job_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// clientMessage is what subscribers send upstream
type clientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	JobID  string `json:"job_id"`
}

// clientState tracks one connection's subscriptions. An empty set means the
// client receives every job's events (firehose).
type clientState struct {
	subscriptions map[string]bool
}

// WebSocketHandler manages push-channel connections and broadcasts job events
// to subscribed clients. Delivery is at-most-once: a message to a broken or
// slow connection is dropped, never queued or replayed. Clients that need
// guaranteed terminal detection pair the socket with polling.
type WebSocketHandler struct {
	logger      arbor.ILogger
	clients     map[*websocket.Conn]*clientState
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex

	progressThrottle  time.Duration
	progressThrottler map[string]*rate.Limiter // Per-job limiter for progress events
	throttleMu        sync.Mutex

	serverInstanceID string // Unique ID generated on startup - clients use to detect server restart
}

// NewWebSocketHandler creates a push-channel handler. A configured progress
// throttle bounds the broadcast rate of progress events per job; terminal
// events are never throttled.
func NewWebSocketHandler(logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:            logger,
		clients:           make(map[*websocket.Conn]*clientState),
		clientMutex:       make(map[*websocket.Conn]*sync.Mutex),
		progressThrottler: make(map[string]*rate.Limiter),
		serverInstanceID:  uuid.New().String(),
	}

	if config != nil && config.ProgressThrottle != "" {
		if duration, err := time.ParseDuration(config.ProgressThrottle); err == nil {
			h.progressThrottle = duration
			logger.Debug().
				Str("interval", config.ProgressThrottle).
				Msg("Progress broadcast throttle enabled")
		} else {
			logger.Warn().
				Err(err).
				Str("interval", config.ProgressThrottle).
				Msg("Failed to parse progress throttle interval - throttle disabled")
		}
	}

	logger.Info().Str("server_instance_id", h.serverInstanceID).Msg("WebSocket handler initialized")
	return h
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = &clientState{subscriptions: make(map[string]bool)}
	h.clientMutex[conn] = &sync.Mutex{}
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendToConn(conn, WSMessage{
		Type:    "connected",
		Payload: map[string]string{"server_instance_id": h.serverInstanceID},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
		h.handleClientMessage(conn, data)
	}
}

func (h *WebSocketHandler) handleClientMessage(conn *websocket.Conn, data []byte) {
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn().Err(err).Msg("Ignoring malformed client message")
		return
	}

	h.mu.Lock()
	state, ok := h.clients[conn]
	if ok {
		switch msg.Action {
		case "subscribe":
			if msg.JobID != "" {
				state.subscriptions[msg.JobID] = true
			}
		case "unsubscribe":
			delete(state.subscriptions, msg.JobID)
		}
	}
	h.mu.Unlock()

	if ok && msg.JobID != "" {
		h.logger.Debug().
			Str("action", msg.Action).
			Str("job_id", msg.JobID).
			Msg("Client subscription updated")
	}
}

// BroadcastJobEvent sends a job event to every client subscribed to the job
// (or to everything). Progress events pass through the per-job throttle;
// other event types always go out.
func (h *WebSocketHandler) BroadcastJobEvent(jobID string, msg WSMessage) {
	if msg.Type == "progress" && !h.allowProgress(jobID) {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal job event message")
		return
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn, state := range h.clients {
		if len(state.subscriptions) == 0 || state.subscriptions[jobID] {
			targets = append(targets, conn)
			mutexes = append(mutexes, h.clientMutex[conn])
		}
	}
	h.mu.RUnlock()

	for i, conn := range targets {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to send job event to client")
		}
	}
}

// ForgetJob releases the per-job throttle state once a job is terminal
func (h *WebSocketHandler) ForgetJob(jobID string) {
	h.throttleMu.Lock()
	delete(h.progressThrottler, jobID)
	h.throttleMu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) allowProgress(jobID string) bool {
	if h.progressThrottle <= 0 {
		return true
	}

	h.throttleMu.Lock()
	limiter, ok := h.progressThrottler[jobID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.progressThrottle), 1)
		h.progressThrottler[jobID] = limiter
	}
	h.throttleMu.Unlock()

	return limiter.Allow()
}

func (h *WebSocketHandler) sendToConn(conn *websocket.Conn, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal message")
		return
	}

	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send message to client")
	}
}
