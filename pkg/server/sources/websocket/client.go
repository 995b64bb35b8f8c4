package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Magicwander/OKX-submission-complete/pkg/logging"
)

const maxReconnectWait = 60 * time.Second

// Client represents a WebSocket client with reconnection support
type Client struct {
	url           string
	conn          *websocket.Conn
	connMu        sync.Mutex // guards conn and serializes writes
	reconnectWait time.Duration
	maxRetries    int
	pingInterval  time.Duration
	pongWait      time.Duration
	writeWait     time.Duration
	logger        *logging.Logger
	headers       http.Header

	done chan struct{}

	// Handlers
	onMessage    func([]byte)
	onConnect    func() error
	onDisconnect func(error)

	// State
	connected bool
	closed    bool
	stateMu   sync.RWMutex
}

// Config holds WebSocket client configuration
type Config struct {
	URL           string
	ReconnectWait time.Duration
	MaxRetries    int // <= 0 retries forever
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	Logger        *logging.Logger
	Headers       http.Header
}

// NewClient creates a new WebSocket client
func NewClient(cfg Config) *Client {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 5 * time.Second
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait == 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait == 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoopLogger()
	}

	return &Client{
		url:           cfg.URL,
		reconnectWait: cfg.ReconnectWait,
		maxRetries:    cfg.MaxRetries,
		pingInterval:  cfg.PingInterval,
		pongWait:      cfg.PongWait,
		writeWait:     cfg.WriteWait,
		logger:        cfg.Logger,
		headers:       cfg.Headers,
		done:          make(chan struct{}),
	}
}

// SetHandlers sets the event handlers. onConnect runs after every
// successful dial, before messages are read, and may send subscriptions.
func (c *Client) SetHandlers(onMessage func([]byte), onConnect func() error, onDisconnect func(error)) {
	c.onMessage = onMessage
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
}

// Connect establishes the WebSocket connection
func (c *Client) Connect(ctx context.Context) error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, c.url, c.headers)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	c.setConnected(true)

	if c.onConnect != nil {
		if err := c.onConnect(); err != nil {
			_ = conn.Close()
			c.setConnected(false)
			return err
		}
	}

	c.logger.Info("WebSocket connected", "url", c.url)

	go c.readPump(ctx, conn)
	go c.pingPump(conn)

	return nil
}

// ConnectWithRetry connects with exponential backoff up to one minute.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	wait := c.reconnectWait
	retries := 0
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}

		retries++
		if c.maxRetries > 0 && retries >= c.maxRetries {
			return ErrMaxRetriesExceeded
		}

		c.logger.Warn("WebSocket connection failed, retrying",
			"error", err,
			"retry", retries,
			"wait", wait.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return ErrNotConnected
		case <-time.After(wait):
			wait *= 2
			if wait > maxReconnectWait {
				wait = maxReconnectWait
			}
		}
	}
}

// Send writes a text message.
func (c *Client) Send(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

// SendJSON writes v as a JSON message.
func (c *Client) SendJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteJSON(v)
}

func (c *Client) write(messageType int, data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Close closes the WebSocket connection and stops reconnecting.
func (c *Client) Close() error {
	c.stateMu.Lock()
	if c.closed {
		c.stateMu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.stateMu.Unlock()
	close(c.done)

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		err := c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.connected = connected
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// readPump reads messages until the connection fails, then reconnects.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	defer c.reconnect(ctx)

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && !c.isClosed() {
				c.logger.Error("WebSocket read error", "error", err)
			}
			return
		}
		if c.onMessage != nil {
			c.onMessage(message)
		}
	}
}

// pingPump sends periodic pings on conn until it is replaced or closed.
func (c *Client) pingPump(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != conn {
				c.connMu.Unlock()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(c.writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()

			if err != nil {
				c.logger.Warn("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}

// reconnect attempts to reconnect after disconnection
func (c *Client) reconnect(ctx context.Context) {
	if c.isClosed() || ctx.Err() != nil {
		return
	}

	c.setConnected(false)
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if c.onDisconnect != nil {
		c.onDisconnect(ErrConnectionLost)
	}

	c.logger.Warn("WebSocket disconnected, attempting to reconnect")
	if err := c.ConnectWithRetry(ctx); err != nil {
		c.logger.Error("WebSocket reconnection failed", "error", err)
	}
}
