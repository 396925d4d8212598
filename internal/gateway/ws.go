// Package gateway owns the connection lifecycle: handshake, version
// negotiation, authentication, the per-connection read/write loops,
// heartbeat, and teardown.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/aisopod/aisopod/internal/auth"
	"github.com/aisopod/aisopod/internal/logx"
	"github.com/aisopod/aisopod/internal/metrics"
	"github.com/aisopod/aisopod/internal/protocol"
	"github.com/aisopod/aisopod/internal/ratelimit"
	"github.com/aisopod/aisopod/internal/registry"
	"github.com/aisopod/aisopod/internal/router"
	"github.com/aisopod/aisopod/internal/rpc"
	"github.com/aisopod/aisopod/internal/serverstate"
)

// Options holds the per-connection timing and queue limits.
type Options struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	SendQueueSize    int
	// ServerVersion is the build version reported in welcome frames.
	ServerVersion string
	// AllowedOrigins is passed through to the websocket accept
	// options; empty allows same-origin only.
	AllowedOrigins []string
}

func (o *Options) setDefaults() {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 5 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = 10 * time.Second
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 64
	}
	if o.ServerVersion == "" {
		o.ServerVersion = "dev"
	}
}

// Gateway accepts upgrade requests and runs one lifecycle per
// connection.
type Gateway struct {
	reg     *registry.Registry
	router  *router.Router
	gate    *auth.Gate
	limiter *ratelimit.Limiter
	opts    Options
}

// New wires the gateway's collaborators together.
func New(reg *registry.Registry, rtr *router.Router, gate *auth.Gate, limiter *ratelimit.Limiter, opts Options) *Gateway {
	opts.setDefaults()
	return &Gateway{reg: reg, router: rtr, gate: gate, limiter: limiter, opts: opts}
}

type welcomeMessage struct {
	Type            string `json:"type"`
	ConnID          string `json:"conn_id"`
	ServerVersion   string `json:"server_version"`
	ProtocolVersion string `json:"protocol_version"`
}

// Handler returns the websocket upgrade endpoint.
func (g *Gateway) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if serverstate.IsDraining() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}

		// Credentials travel on the upgrade request, so a failed gate
		// rejects before the connection ever upgrades.
		identity, err := g.gate.Authenticate(r)
		if err != nil {
			logx.Log.Warn().Str("remote_addr", r.RemoteAddr).Msg("handshake rejected: unauthorized")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		declared := r.Header.Get(protocol.Header)
		version, verr := protocol.Negotiate(protocol.Server, declared)

		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: g.opts.AllowedOrigins})
		if err != nil {
			return
		}

		hctx, hcancel := context.WithTimeout(r.Context(), g.opts.HandshakeTimeout)
		if verr != nil {
			g.rejectVersion(hctx, ws, declared, verr)
			hcancel()
			return
		}

		c := newConn(uuid.NewString(), r.RemoteAddr, identity, version, ws, g.opts.SendQueueSize)
		c.setState(stateAuthenticated)

		welcome, _ := json.Marshal(welcomeMessage{
			Type:            "welcome",
			ConnID:          c.id,
			ServerVersion:   g.opts.ServerVersion,
			ProtocolVersion: version.String(),
		})
		if err := ws.Write(hctx, websocket.MessageText, welcome); err != nil {
			hcancel()
			_ = ws.Close(websocket.StatusPolicyViolation, "handshake timeout")
			return
		}
		hcancel()

		g.run(r.Context(), c)
	}
}

// rejectVersion delivers the structured mismatch error before closing,
// so the client learns both versions.
func (g *Gateway) rejectVersion(ctx context.Context, ws *websocket.Conn, declared string, verr error) {
	var me *protocol.MismatchError
	var rerr *rpc.Error
	if errors.As(verr, &me) {
		rerr = &rpc.Error{
			Code:    rpc.CodeVersionMismatch,
			Message: "Protocol version mismatch",
			Data: map[string]string{
				"server_version": me.Server.String(),
				"client_version": me.Client.String(),
			},
		}
	} else {
		rerr = rpc.Errorf(rpc.CodeInvalidRequest, "Malformed protocol version: %s", declared)
	}
	if b, err := rpc.Encode(rpc.NewError(nil, rerr)); err == nil {
		_ = ws.Write(ctx, websocket.MessageText, b)
	}
	logx.Log.Warn().Str("client_version", declared).Str("server_version", protocol.Server.String()).Msg("handshake rejected: protocol version")
	_ = ws.Close(websocket.StatusPolicyViolation, verr.Error())
}

// run registers the connection and drives it until close.
func (g *Gateway) run(parent context.Context, c *conn) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Active before registration, so a broadcast that finds the record
	// immediately can already enqueue.
	c.setState(stateActive)
	g.reg.OnConnect(registry.ClientRecord{
		ConnID:      c.id,
		Role:        c.identity.Role,
		Scopes:      c.identity.Scopes,
		RemoteAddr:  c.remoteAddr,
		ConnectedAt: c.connectedAt,
	}, c)
	metrics.RecordConnect(c.identity.Role)
	logx.Log.Info().
		Str("conn_id", c.id).
		Str("remote_addr", c.remoteAddr).
		Str("role", c.identity.Role).
		Str("protocol_version", c.version.String()).
		Msg("connected")

	// Closing the connection cancels ctx, which unblocks the pending
	// Read and stops the writer and heartbeat.
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	go c.writeLoop(ctx)
	go c.heartbeatLoop(ctx, g.opts.PingInterval, g.opts.PongTimeout)

	g.readLoop(ctx, c)

	c.setState(stateClosed)
	code, reason := c.closeInfo()
	_ = c.ws.Close(code, reason)
	g.reg.OnDisconnect(c.id)
	g.limiter.Forget(c.id)
	duration := time.Since(c.connectedAt)
	metrics.RecordDisconnect(c.identity.Role, reason, duration)
	logx.Log.Info().
		Str("conn_id", c.id).
		Str("role", c.identity.Role).
		Str("reason", reason).
		Dur("duration", duration).
		Msg("disconnected")
}

// readLoop pulls inbound frames and dispatches them in arrival order,
// giving each connection head-of-line FIFO processing while separate
// connections proceed concurrently.
func (g *Gateway) readLoop(ctx context.Context, c *conn) {
	call := &router.CallContext{
		ConnID:     c.id,
		RemoteAddr: c.remoteAddr,
		Role:       c.identity.Role,
		Scopes:     c.identity.Scopes,
	}
	for {
		_, frame, err := c.ws.Read(ctx)
		if err != nil {
			var ce websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.StatusNormalClosure {
				c.close(websocket.StatusNormalClosure, "client closed")
			} else {
				c.close(websocket.StatusAbnormalClosure, "read failed")
			}
			return
		}
		g.handleFrame(ctx, c, call, frame)
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (g *Gateway) handleFrame(ctx context.Context, c *conn, call *router.CallContext, frame []byte) {
	req, rerr := rpc.Decode(frame)
	if rerr != nil {
		g.respond(c, rpc.NewError(nil, rerr))
		return
	}

	if ok, wait := g.limiter.Allow(c.id); !ok {
		metrics.RecordRateLimited()
		if !req.IsNotification() {
			g.respond(c, rpc.NewError(req.ID, &rpc.Error{
				Code:    rpc.CodeRateLimited,
				Message: "Rate limit exceeded",
				Data:    map[string]int64{"retry_after_ms": wait.Milliseconds()},
			}))
		}
		return
	}

	resp := g.router.Dispatch(ctx, call, req)
	if resp == nil {
		metrics.RecordRequest(req.Method, true)
		return
	}
	metrics.RecordRequest(req.Method, resp.Error == nil)
	g.respond(c, resp)
}

func (g *Gateway) respond(c *conn, resp *rpc.Response) {
	b, err := rpc.Encode(resp)
	if err != nil {
		logx.Log.Error().Err(err).Str("conn_id", c.id).Msg("encode response")
		return
	}
	c.TrySend(b)
}
