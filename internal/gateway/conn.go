package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/aisopod/aisopod/internal/auth"
	"github.com/aisopod/aisopod/internal/logx"
	"github.com/aisopod/aisopod/internal/protocol"
)

// connState tracks the lifecycle of one connection. Any state may
// jump straight to stateClosed on error.
type connState int32

const (
	stateHandshaking connState = iota
	stateAuthenticated
	stateActive
	stateClosing
	stateClosed
)

// conn is one live client connection. It is mutated only by its own
// lifecycle goroutines; the registry and broadcaster reach it solely
// through the registry.Sender interface.
type conn struct {
	id          string
	remoteAddr  string
	identity    auth.Identity
	version     protocol.Version
	connectedAt time.Time

	ws   *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	state  connState
	reason string
	code   websocket.StatusCode

	// done is closed exactly once when the connection enters
	// stateClosed; it cancels the heartbeat and writer goroutines.
	done     chan struct{}
	doneOnce sync.Once
}

func newConn(id, remoteAddr string, identity auth.Identity, version protocol.Version, ws *websocket.Conn, queueSize int) *conn {
	return &conn{
		id:          id,
		remoteAddr:  remoteAddr,
		identity:    identity,
		version:     version,
		connectedAt: time.Now(),
		ws:          ws,
		send:        make(chan []byte, queueSize),
		state:       stateHandshaking,
		done:        make(chan struct{}),
	}
}

// setState advances the lifecycle. Transitions only move forward; a
// goroutine racing a close cannot drag the connection back out of
// stateClosing or stateClosed.
func (c *conn) setState(s connState) {
	c.mu.Lock()
	if s > c.state {
		c.state = s
	}
	c.mu.Unlock()
}

func (c *conn) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TrySend implements registry.Sender. Only active connections accept
// outbound frames. A full queue is transport-fatal for this
// connection: the slow peer is disconnected so it cannot stall the
// broadcaster or other clients.
func (c *conn) TrySend(frame []byte) bool {
	if c.currentState() != stateActive {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.close(websocket.StatusPolicyViolation, "outbound queue overflow")
		return false
	}
}

// Kick implements registry.Sender.
func (c *conn) Kick(reason string) {
	c.close(websocket.StatusPolicyViolation, reason)
}

// close records the reason and wakes every goroutine owned by the
// connection. Only the first call wins.
func (c *conn) close(code websocket.StatusCode, reason string) {
	c.doneOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosing
		c.code = code
		c.reason = reason
		c.mu.Unlock()
		close(c.done)
	})
}

// closeInfo returns the recorded close code and reason.
func (c *conn) closeInfo() (websocket.StatusCode, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reason == "" {
		return websocket.StatusNormalClosure, "connection closed"
	}
	return c.code, c.reason
}

// writeLoop drains the outbound queue onto the websocket. It exits
// when the connection is closed or a write fails.
func (c *conn) writeLoop(ctx context.Context) {
	for {
		select {
		case frame := <-c.send:
			if err := c.ws.Write(ctx, websocket.MessageText, frame); err != nil {
				c.close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			c.close(websocket.StatusGoingAway, "context canceled")
			return
		}
	}
}

// heartbeatLoop pings at interval and force-closes the connection when
// a pong does not arrive within pongTimeout.
func (c *conn) heartbeatLoop(ctx context.Context, interval, pongTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pongTimeout)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil {
				logx.Log.Warn().Str("conn_id", c.id).Msg("heartbeat timeout")
				c.close(websocket.StatusPolicyViolation, "heartbeat timeout")
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
