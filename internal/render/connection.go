package render

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/raceplayback/server/pkg/streaming"
)

const (
	sendChSize   = 4096
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// link is one dialed socket. Its loops stop when stop is closed, so a
// reconnect never leaves two writers on the same socket.
type link struct {
	conn *ws.Conn
	stop chan struct{}
}

// connection owns the WebSocket to the render server. Each link has exactly
// one write goroutine.
type connection struct {
	mu     sync.Mutex
	active *link
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{}
	closed bool

	wsURL  string
	secret string

	// replay rebuilds the message that restores the car after a reconnect.
	replay func() []byte

	// retryDelay is the first reconnect backoff.
	retryDelay time.Duration
	writeLoops atomic.Int32

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:     make(chan []byte, sendChSize),
		ackCh:      make(chan streaming.AckMessage, ackChSize),
		done:       make(chan struct{}),
		retryDelay: time.Second,
		logger:     logger,
	}
}

func (c *connection) setReplay(fn func() []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replay = fn
}

func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.start(conn)
	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.secret != "" {
		q := u.Query()
		q.Set("secret", c.secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// start makes conn the active link and runs its loops. It reports false and
// closes conn when the connection was closed meanwhile.
func (c *connection) start(conn *ws.Conn) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false
	}
	l := &link{conn: conn, stop: make(chan struct{})}
	c.active = l
	c.writeLoops.Add(1)
	c.mu.Unlock()

	go c.writeLoop(l)
	go c.readLoop(l)
	return true
}

// writeLoop is the only writer of l.conn. It drains sendCh until l is
// retired or the first write error, which hands over to reconnect.
func (c *connection) writeLoop(l *link) {
	defer c.writeLoops.Add(-1)
	for {
		select {
		case <-c.done:
			return
		case <-l.stop:
			return
		case data := <-c.sendCh:
			if err := write(l.conn, data); err != nil {
				c.logger.Warn("Render stream write error", "error", err)
				go c.reconnect(l)
				return
			}
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readLoop routes acks to ackCh.
func (c *connection) readLoop(l *link) {
	for {
		_, message, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			case <-l.stop:
				return
			default:
			}
			c.logger.Warn("Render stream read error", "error", err)
			c.reconnect(l)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Ignoring non-ack message", "raw", string(message))
			continue
		}
		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// retire stops l's loops and closes its socket. It reports false when l is
// no longer the active link, so only the first failure of a link redials.
func (c *connection) retire(l *link) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.active != l {
		return false
	}
	c.active = nil
	close(l.stop)
	_ = l.conn.Close()
	return true
}

// reconnect redials with exponential backoff after l failed, restores the
// car through the replay message and starts a new link.
func (c *connection) reconnect(l *link) {
	if !c.retire(l) {
		return
	}

	backoff := c.retryDelay
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting render stream", "attempt", attempt)
		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		replay := c.replay
		c.mu.Unlock()
		if replay != nil {
			if msg := replay(); msg != nil {
				if err := write(conn, msg); err != nil {
					c.logger.Warn("Failed to restore car after reconnect", "error", err)
					_ = conn.Close()
					backoff = min(backoff*2, maxBackoff)
					continue
				}
			}
		}

		if c.start(conn) {
			c.logger.Info("Render stream reconnected", "attempt", attempt)
		}
		return
	}

	c.logger.Error("Render stream reconnect failed", "maxAttempts", maxReconnect)
}

// send queues data without blocking; it drops data when the queue is full.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("Render stream send queue full, dropping message")
	}
}

// sendAndWait queues data and waits for the matching ack.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// close sends a close frame and stops the loops.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	l := c.active
	c.active = nil
	c.mu.Unlock()

	if l == nil {
		return nil
	}
	close(l.stop)
	// WriteControl may run alongside the link's write loop.
	_ = l.conn.WriteControl(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return l.conn.Close()
}
