package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bytebuddy/internal/auth"
	"bytebuddy/internal/events"
	"bytebuddy/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot set headers on a websocket handshake; the token is
	// checked instead of the origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// UsageClient is one websocket connection owned by an account
type UsageClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *UsageHub
	accountID string
	closeChan chan struct{}
}

// UsageHub fans account events out to that account's connections only
type UsageHub struct {
	clients     map[string]map[*UsageClient]bool
	accountCast chan accountMessage
	register    chan *UsageClient
	unregister  chan *UsageClient
	done        chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
	logger      *logging.Logger
}

type accountMessage struct {
	accountID string
	data      []byte
}

// NewUsageHub creates a new account-scoped websocket hub
func NewUsageHub() *UsageHub {
	return &UsageHub{
		clients:     make(map[string]map[*UsageClient]bool),
		accountCast: make(chan accountMessage, 256),
		register:    make(chan *UsageClient),
		unregister:  make(chan *UsageClient),
		done:        make(chan struct{}),
		logger:      logging.WithComponent("ws"),
	}
}

// Attach forwards every account-scoped event on bus to its owner
func (h *UsageHub) Attach(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.SubscribeAll(func(e events.Event) {
		if e.AccountID != "" {
			h.BroadcastToAccount(e.AccountID, e)
		}
	})
}

// Run starts the hub loop until Stop is called
func (h *UsageHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.accountID] == nil {
				h.clients[client.accountID] = make(map[*UsageClient]bool)
			}
			h.clients[client.accountID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case msg := <-h.accountCast:
			h.mu.Lock()
			for client := range h.clients[msg.accountID] {
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for _, conns := range h.clients {
				for client := range conns {
					h.removeLocked(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop closes every connection and ends Run
func (h *UsageHub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// removeLocked must be called with the write lock held
func (h *UsageHub) removeLocked(client *UsageClient) {
	conns, ok := h.clients[client.accountID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(h.clients, client.accountID)
	}
	close(client.send)
}

// BroadcastToAccount sends an event to one account's connections
func (h *UsageHub) BroadcastToAccount(accountID string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to marshal account event")
		return
	}

	select {
	case h.accountCast <- accountMessage{accountID: accountID, data: data}:
	default:
		h.logger.Warn("Account broadcast channel full, dropping message", "account_id", accountID)
	}
}

// ClientCount returns the number of connections for an account
func (h *UsageHub) ClientCount(accountID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[accountID])
}

// writePump pumps messages from the hub to the websocket connection
func (c *UsageClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// readPump discards client messages and detects disconnects
func (c *UsageClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		close(c.closeChan)
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).Debug("WebSocket read error", "account_id", c.accountID)
			}
			return
		}
	}
}

// handleUsageWebSocket streams the caller's own usage events. The token comes
// from the Authorization header or the token query parameter.
func (s *Server) handleUsageWebSocket(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok || token == "" {
		token = strings.TrimSpace(c.Query("token"))
	}

	acct, err := s.deps.Gate.Authenticate(c.Request.Context(), token)
	if err != nil {
		var authErr auth.AuthError
		if errors.As(err, &authErr) {
			errorResponse(c, authErr.HTTPStatus(), authErr.Code, authErr.Message)
			return
		}
		errorResponse(c, http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "could not verify credentials, please retry")
		return
	}

	snapshot, err := s.deps.Quota.Snapshot(c.Request.Context(), acct)
	if err != nil {
		toolError(c, err, "Error fetching usage")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	client := &UsageClient{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		hub:       s.hub,
		accountID: acct.ID,
		closeChan: make(chan struct{}),
	}

	// The welcome message is queued before registration so it is always first
	welcome, err := json.Marshal(gin.H{
		"type":      "CONNECTED",
		"timestamp": time.Now(),
		"data":      gin.H{"accountId": acct.ID, "usage": snapshot},
	})
	if err == nil {
		client.send <- welcome
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
