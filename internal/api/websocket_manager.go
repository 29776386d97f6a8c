package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Mobile clients send no Origin header; auth is carried by the token.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AckFunc is called when a client acknowledges a notification it displayed.
type AckFunc func(ctx context.Context, sessionID, notificationID string)

// ConnectFunc is called after a client has been registered for sessionID.
type ConnectFunc func(ctx context.Context, sessionID string)

type Client struct {
	ID        uuid.UUID
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
	UserID    string
}

func NewClient(conn *websocket.Conn, sessionID, userID string) *Client {
	return &Client{
		ID:        uuid.New(),
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		SessionID: sessionID,
		UserID:    userID,
	}
}

// WebSocketManager tracks the live connections of each session. A session
// may have several connections (multiple tabs or devices sharing a token).
type WebSocketManager struct {
	register   chan *Client
	unregister chan *Client

	mu       sync.RWMutex
	sessions map[string]map[*Client]bool

	onAck     AckFunc
	onConnect ConnectFunc
	logger    *zap.Logger
}

func NewWebSocketManager(onAck AckFunc, onConnect ConnectFunc, logger *zap.Logger) *WebSocketManager {
	return &WebSocketManager{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		sessions:   make(map[string]map[*Client]bool),
		onAck:      onAck,
		onConnect:  onConnect,
		logger:     logger,
	}
}

// Run processes registrations until ctx is cancelled, then closes every
// client.
func (m *WebSocketManager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for id, clients := range m.sessions {
				for c := range clients {
					close(c.Send)
				}
				delete(m.sessions, id)
			}
			m.mu.Unlock()
			return

		case c := <-m.register:
			m.mu.Lock()
			if _, ok := m.sessions[c.SessionID]; !ok {
				m.sessions[c.SessionID] = make(map[*Client]bool)
			}
			m.sessions[c.SessionID][c] = true
			m.mu.Unlock()
			m.logger.Debug("websocket client registered", zap.String("session_id", c.SessionID))
			if m.onConnect != nil {
				go m.onConnect(ctx, c.SessionID)
			}

		case c := <-m.unregister:
			m.remove(c)
		}
	}
}

func (m *WebSocketManager) remove(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clients, ok := m.sessions[c.SessionID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(m.sessions, c.SessionID)
	}
	close(c.Send)
	m.logger.Debug("websocket client unregistered", zap.String("session_id", c.SessionID))
}

func (m *WebSocketManager) Register(c *Client)   { m.register <- c }
func (m *WebSocketManager) Unregister(c *Client) { m.unregister <- c }

// Connected reports whether sessionID has at least one live connection.
func (m *WebSocketManager) Connected(sessionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID]) > 0
}

// SendToSession queues message for every connection of sessionID and reports
// whether at least one connection accepted it.
func (m *WebSocketManager) SendToSession(sessionID string, message interface{}) bool {
	payload, err := json.Marshal(message)
	if err != nil {
		m.logger.Error("failed to marshal websocket message", zap.Error(err))
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	delivered := false
	for c := range m.sessions[sessionID] {
		select {
		case c.Send <- payload:
			delivered = true
		default:
			m.logger.Warn("websocket client buffer full, dropping message", zap.String("session_id", sessionID))
		}
	}
	return delivered
}

// WSEvent is the envelope for server to client messages.
type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// wsCommand is a client to server message, e.g. {"type":"ack","id":"..."}.
type wsCommand struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func (c *Client) ReadPump(manager *WebSocketManager) {
	defer func() {
		manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				manager.logger.Debug("websocket closed unexpectedly", zap.String("session_id", c.SessionID), zap.Error(err))
			}
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		if cmd.Type == "ack" && cmd.ID != "" && manager.onAck != nil {
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			manager.onAck(ctx, c.SessionID, cmd.ID)
			cancel()
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
