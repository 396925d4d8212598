package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aisopod/aisopod/internal/auth"
	"github.com/aisopod/aisopod/internal/config"
	"github.com/aisopod/aisopod/internal/gateway"
	"github.com/aisopod/aisopod/internal/pairing"
	"github.com/aisopod/aisopod/internal/ratelimit"
	"github.com/aisopod/aisopod/internal/registry"
	"github.com/aisopod/aisopod/internal/router"
)

func newHandler(cfg config.ServerConfig) (http.Handler, *registry.Registry) {
	reg := registry.New()
	pairs := pairing.NewService(pairing.NewMemoryStore(), time.Minute)
	rtr := router.New()
	pairing.RegisterHandlers(rtr, pairs)
	gw := gateway.New(reg, rtr, auth.NewOpenGate("operator"), ratelimit.New(100, 100), gateway.Options{})
	return New(cfg, gw, reg, pairs), reg
}

func TestHealthz(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, WSPath: "/ws"}
	h, _ := newHandler(cfg)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if string(b) != `{"status":"ok"}` {
		t.Fatalf("body = %s", b)
	}
}

func TestStatePage(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, WSPath: "/ws"}
	h, _ := newHandler(cfg)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/state")
	if err != nil {
		t.Fatalf("GET /state: %v", err)
	}
	defer resp.Body.Close()
	var page struct {
		Status      string `json:"status"`
		Connections struct {
			TotalConnections int `json:"total_connections"`
		} `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Connections.TotalConnections != 0 {
		t.Fatalf("page = %+v", page)
	}
}

func TestMetricsEndpointDefaultPort(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, MetricsAddr: ":8080", WSPath: "/ws"}
	h, _ := newHandler(cfg)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpointSeparatePort(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, MetricsAddr: ":9090", WSPath: "/ws"}
	h, _ := newHandler(cfg)
	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestCORSAllowedOrigins(t *testing.T) {
	cfg := config.ServerConfig{Port: 8080, WSPath: "/ws", AllowedOrigins: []string{"https://example.com"}}
	h, _ := newHandler(cfg)
	ts := httptest.NewServer(h)
	defer ts.Close()

	req, _ := http.NewRequest("GET", ts.URL+"/healthz", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	resp.Body.Close()
	if ao := resp.Header.Get("Access-Control-Allow-Origin"); ao != "https://example.com" {
		t.Fatalf("allow-origin = %q", ao)
	}
}
