package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"parlor/pkg/types"
)

// Options tunes connection heartbeat and buffering.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

// Connection wraps a websocket connection with a verified identity.
// WebSocket writes must be serialized; all writes funnel through a
// single writer goroutine draining writeCh. The identity is immutable
// for the connection's lifetime.
type Connection struct {
	conn      *websocket.Conn
	identity  types.Identity
	opts      Options
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded websocket connection. The heartbeat
// (ping ticker plus read-deadline refresh on pong) starts immediately.
func NewConnection(conn *websocket.Conn, identity types.Identity, opts Options) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:     conn,
		identity: identity,
		opts:     opts,
		writeCh:  make(chan []byte, opts.BufferSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	_ = conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(opts.ReadTimeout))
	})

	go c.writeLoop()
	go c.pingLoop()

	return c
}

// writeLoop is the single writer goroutine.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// pingLoop keeps the heartbeat going until the connection closes.
func (c *Connection) pingLoop() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a JSON message for the writer goroutine. Thread-safe.
func (c *Connection) WriteJSON(v any) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.opts.WriteTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// ReadEvent blocks until the next inbound client event arrives. The
// read deadline is enforced by the heartbeat; a dead client surfaces
// here as a read error.
func (c *Connection) ReadEvent() (*types.ClientEvent, error) {
	messageType, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if messageType != websocket.TextMessage {
		return nil, ErrInvalidJSON
	}

	var ev types.ClientEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, ErrInvalidJSON
	}
	return &ev, nil
}

// Username returns the authenticated identity's name.
func (c *Connection) Username() string {
	return c.identity.Name
}

// Identity returns the verified identity attached at handshake.
func (c *Connection) Identity() types.Identity {
	return c.identity
}

// Done is closed when the connection has been shut down.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close shuts down the connection and its goroutines. Safe to call more
// than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
