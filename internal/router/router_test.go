package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aisopod/aisopod/internal/rpc"
)

func call() *CallContext {
	return &CallContext{ConnID: "c1", RemoteAddr: "127.0.0.1:1", Role: "operator"}
}

func request(method, id string) *rpc.Request {
	req := &rpc.Request{JSONRPC: rpc.Version, Method: method}
	if id != "" {
		req.ID = json.RawMessage(id)
	}
	return req
}

func TestDispatchEchoesID(t *testing.T) {
	r := New()
	r.Register("echo.ping", HandlerFunc(func(_ context.Context, _ *CallContext, _ json.RawMessage) (any, *rpc.Error) {
		return map[string]string{"pong": "yes"}, nil
	}))
	resp := r.Dispatch(context.Background(), call(), request("echo.ping", `"42"`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("response = %+v", resp)
	}
	if string(resp.ID) != `"42"` {
		t.Fatalf("id = %s; want %q", resp.ID, `"42"`)
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	r := New()
	resp := r.Dispatch(context.Background(), call(), request("chat.send", `"1"`))
	if resp == nil || resp.Error == nil {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Error.Code != rpc.CodeMethodNotFound {
		t.Fatalf("code = %d; want %d", resp.Error.Code, rpc.CodeMethodNotFound)
	}
	if got, want := resp.Error.Message, "Method not found: chat.send"; got != want {
		t.Fatalf("message = %q; want %q", got, want)
	}
}

func TestNamespacePlaceholder(t *testing.T) {
	r := New()
	r.RegisterNamespace("chat", NotImplemented)
	resp := r.Dispatch(context.Background(), call(), request("chat.history", `1`))
	if resp.Error == nil || resp.Error.Code != rpc.CodeMethodNotFound {
		t.Fatalf("response = %+v", resp)
	}

	// Exact registrations win over the namespace fallback.
	r.Register("chat.send", HandlerFunc(func(_ context.Context, _ *CallContext, _ json.RawMessage) (any, *rpc.Error) {
		return "sent", nil
	}))
	resp = r.Dispatch(context.Background(), call(), request("chat.send", `2`))
	if resp.Error != nil {
		t.Fatalf("exact handler not used: %+v", resp.Error)
	}
}

func TestNotificationGetsNoResponse(t *testing.T) {
	r := New()
	called := false
	r.Register("chat.typing", HandlerFunc(func(_ context.Context, _ *CallContext, _ json.RawMessage) (any, *rpc.Error) {
		called = true
		return nil, nil
	}))
	if resp := r.Dispatch(context.Background(), call(), request("chat.typing", "")); resp != nil {
		t.Fatalf("notification produced response %+v", resp)
	}
	if !called {
		t.Fatalf("notification handler not invoked")
	}
	// Unknown notifications are dropped silently too.
	if resp := r.Dispatch(context.Background(), call(), request("nope.nope", "")); resp != nil {
		t.Fatalf("unknown notification produced response %+v", resp)
	}
}

func TestHandlerPanicBecomesInternalError(t *testing.T) {
	r := New()
	r.Register("boom.now", HandlerFunc(func(_ context.Context, _ *CallContext, _ json.RawMessage) (any, *rpc.Error) {
		panic("kaboom")
	}))
	resp := r.Dispatch(context.Background(), call(), request("boom.now", `3`))
	if resp.Error == nil || resp.Error.Code != rpc.CodeInternalError {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Error.Message != "Internal error" {
		t.Fatalf("panic detail leaked: %q", resp.Error.Message)
	}
}
