// Package router dispatches decoded RPC requests to method handlers.
// The method table is populated once at startup and read-only after.
package router

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aisopod/aisopod/internal/logx"
	"github.com/aisopod/aisopod/internal/rpc"
)

// CallContext describes the connection a request arrived on.
type CallContext struct {
	ConnID     string
	RemoteAddr string
	Role       string
	Scopes     []string
}

// Handler processes one method call. A non-nil *rpc.Error becomes the
// response's error object; otherwise the returned value is the result.
type Handler interface {
	Handle(ctx context.Context, call *CallContext, params json.RawMessage) (any, *rpc.Error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, call *CallContext, params json.RawMessage) (any, *rpc.Error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, call *CallContext, params json.RawMessage) (any, *rpc.Error) {
	return f(ctx, call, params)
}

// NotImplemented is the placeholder wired to namespaces whose real
// handlers are not registered yet, keeping the method surface
// discoverable.
var NotImplemented = HandlerFunc(func(_ context.Context, _ *CallContext, _ json.RawMessage) (any, *rpc.Error) {
	return nil, rpc.Errorf(rpc.CodeMethodNotFound, "Method not implemented")
})

// Router maps namespaced method names to handlers.
type Router struct {
	methods    map[string]Handler
	namespaces map[string]Handler
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		methods:    make(map[string]Handler),
		namespaces: make(map[string]Handler),
	}
}

// Register binds a handler to an exact method name such as
// "node.pair.request". Not safe for use after dispatch has started.
func (r *Router) Register(method string, h Handler) {
	r.methods[method] = h
}

// RegisterNamespace binds a fallback handler for every method under
// the given namespace prefix (the part before the first dot).
func (r *Router) RegisterNamespace(ns string, h Handler) {
	r.namespaces[ns] = h
}

// Methods returns the registered exact method names.
func (r *Router) Methods() []string {
	res := make([]string, 0, len(r.methods))
	for m := range r.methods {
		res = append(res, m)
	}
	return res
}

func (r *Router) lookup(method string) (Handler, bool) {
	if h, ok := r.methods[method]; ok {
		return h, true
	}
	ns, _, found := strings.Cut(method, ".")
	if !found {
		return nil, false
	}
	h, ok := r.namespaces[ns]
	return h, ok
}

// Dispatch runs the handler for req and builds the response. It
// returns nil for notifications. Handler panics and other unexpected
// failures surface as a generic internal error; detail stays in the
// server log.
func (r *Router) Dispatch(ctx context.Context, call *CallContext, req *rpc.Request) *rpc.Response {
	result, rerr := r.invoke(ctx, call, req)
	if req.IsNotification() {
		return nil
	}
	if rerr != nil {
		return rpc.NewError(req.ID, rerr)
	}
	return rpc.NewResult(req.ID, result)
}

func (r *Router) invoke(ctx context.Context, call *CallContext, req *rpc.Request) (result any, rerr *rpc.Error) {
	h, ok := r.lookup(req.Method)
	if !ok {
		return nil, rpc.Errorf(rpc.CodeMethodNotFound, "Method not found: %s", req.Method)
	}
	defer func() {
		if rec := recover(); rec != nil {
			logx.Log.Error().Interface("panic", rec).Str("method", req.Method).Str("conn_id", call.ConnID).Msg("handler panic")
			result, rerr = nil, rpc.Errorf(rpc.CodeInternalError, "Internal error")
		}
	}()
	return h.Handle(ctx, call, req.Params)
}
