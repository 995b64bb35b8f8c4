package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Magicwander/OKX-submission-complete/pkg/feeder/keeper"
	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// WebSocketServer streams accepted feed updates to connected clients.
type WebSocketServer struct {
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	updates chan keeper.Update
}

// WebSocketClient is one connected stream consumer.
type WebSocketClient struct {
	conn            *websocket.Conn
	send            chan []byte
	server          *WebSocketServer
	subscribedAll   bool
	subscribedPairs map[string]bool
	mu              sync.RWMutex
}

// WebSocketMessage is a client request: "subscribe", "unsubscribe" or "ping".
type WebSocketMessage struct {
	Type  string   `json:"type"`
	Pairs []string `json:"pairs"`
}

// FeedUpdateMessage is pushed to clients for every accepted update.
type FeedUpdateMessage struct {
	Type   string        `json:"type"`
	Update keeper.Update `json:"update"`
}

// NewWebSocketServer creates a WebSocket server. Mount HandleWebSocket on a
// mux and call Run to start broadcasting.
func NewWebSocketServer(logger *logging.Logger) *WebSocketServer {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	return &WebSocketServer{
		logger: logger.With("component", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		clients: make(map[*WebSocketClient]bool),
		updates: make(chan keeper.Update, 100),
	}
}

// Run broadcasts published updates until ctx is done, then closes every
// client connection.
func (s *WebSocketServer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case u := <-s.updates:
			s.broadcast(u)
		}
	}
}

// Publish queues an update for broadcast. It has the keeper observer
// signature and drops the update if the queue stays full.
func (s *WebSocketServer) Publish(u keeper.Update) {
	select {
	case s.updates <- u:
	case <-time.After(100 * time.Millisecond):
		s.logger.Warn("Update channel full, dropping feed update", "pair", u.Pair)
	}
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleWebSocket upgrades the request and registers the client.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &WebSocketClient{
		conn:            conn,
		send:            make(chan []byte, sendBuffer),
		server:          s,
		subscribedAll:   true,
		subscribedPairs: make(map[string]bool),
	}
	s.registerClient(client)

	go client.writePump()
	go client.readPump()

	s.logger.Info("New WebSocket client connected", "remote", conn.RemoteAddr())
}

func (s *WebSocketServer) registerClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *WebSocketServer) unregisterClient(client *WebSocketClient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[client]; ok {
		delete(s.clients, client)
		close(client.send)
	}
}

func (s *WebSocketServer) closeAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		_ = client.conn.Close()
	}
}

func (s *WebSocketServer) broadcast(u keeper.Update) {
	data, err := json.Marshal(FeedUpdateMessage{Type: "feed_update", Update: u})
	if err != nil {
		s.logger.Error("Failed to marshal feed update", "error", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for client := range s.clients {
		if !client.shouldReceive(u.Pair) {
			continue
		}
		select {
		case client.send <- data:
		default:
			s.logger.Warn("Client send buffer full, skipping update", "pair", u.Pair)
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
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
				c.server.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.server.unregisterClient(c)
		_ = c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *WebSocketClient) handleMessage(data []byte) {
	var msg WebSocketMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.server.logger.Warn("Invalid client message", "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Pairs)
	case "unsubscribe":
		c.unsubscribe(msg.Pairs)
	case "ping":
		c.reply(map[string]string{"type": "pong"})
		return
	default:
		c.server.logger.Warn("Unknown message type", "type", msg.Type)
		return
	}
	c.reply(map[string]interface{}{"type": msg.Type + "d", "pairs": msg.Pairs})
}

// subscribe with no pairs or "*" selects every pair.
func (c *WebSocketClient) subscribe(pairs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(pairs) == 0 || (len(pairs) == 1 && pairs[0] == "*") {
		c.subscribedAll = true
		c.subscribedPairs = make(map[string]bool)
		return
	}
	c.subscribedAll = false
	for _, p := range pairs {
		c.subscribedPairs[p] = true
	}
}

func (c *WebSocketClient) unsubscribe(pairs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(pairs) == 0 || (len(pairs) == 1 && pairs[0] == "*") {
		c.subscribedAll = false
		c.subscribedPairs = make(map[string]bool)
		return
	}
	for _, p := range pairs {
		delete(c.subscribedPairs, p)
	}
}

func (c *WebSocketClient) shouldReceive(pair string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscribedAll || c.subscribedPairs[pair]
}

// reply runs on the read loop, which owns closing send, and must not block.
func (c *WebSocketClient) reply(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
