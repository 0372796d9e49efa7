package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a single WebSocket connection to the market feed. One Client
// serves one connection: after Close or Terminate it is discarded and the
// Supervisor constructs a fresh one for the next attempt.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection (close handshake). Errors
	// surfaced by the read loop after Close are suppressed.
	Close() error

	// Terminate closes the underlying socket without a close handshake.
	// The resulting read error is surfaced on Errors(), so termination
	// funnels into the same closed-signal path as a remote close.
	Terminate()

	// Send writes raw bytes to the connection.
	Send(data []byte) error

	// Ping sends a liveness probe control frame.
	Ping() error

	// Messages returns the inbound raw frame channel.
	Messages() <-chan TimestampedMessage

	// Errors returns the connection error channel.
	Errors() <-chan error

	// Pongs returns receipt times of liveness responses.
	Pongs() <-chan time.Time

	// IsConnected returns the current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	pongs    chan time.Time
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewClient creates a new feed transport client.
func NewClient(cfg ClientConfig, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		pongs:    make(chan time.Time, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read loop.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	// Server pings are answered in kind and count as liveness.
	conn.SetPingHandler(func(data string) error {
		c.notifyPong()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.notifyPong()
		return nil
	})

	go c.readLoop()

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	c.mu.Unlock()

	// Suppress read errors from here on
	close(c.done)

	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return c.conn.Close()
	}

	return nil
}

// Terminate force-closes the socket. Unlike Close it leaves the done channel
// open so the read loop's failure reaches Errors().
func (c *client) Terminate() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a liveness probe.
func (c *client) Ping() error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	return conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline)
}

// Messages returns the inbound frame channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the connection error channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// Pongs returns the liveness response channel.
func (c *client) Pongs() <-chan time.Time {
	return c.pongs
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// notifyPong records a liveness response. The channel holds only the latest
// timestamp; a stale unread value is replaced rather than blocking.
func (c *client) notifyPong() {
	now := time.Now()
	select {
	case c.pongs <- now:
	default:
		select {
		case <-c.pongs:
		default:
		}
		select {
		case c.pongs <- now:
		default:
		}
	}
}

// readLoop reads frames from the WebSocket into the messages channel.
func (c *client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
				select {
				case c.errors <- err:
				default:
				}
				return
			}
		}

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("message buffer full, dropping frame")
		}
	}
}
