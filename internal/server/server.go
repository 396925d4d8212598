// Package server assembles the gateway's HTTP surface: the websocket
// endpoint, liveness, state, and metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aisopod/aisopod/internal/config"
	"github.com/aisopod/aisopod/internal/gateway"
	"github.com/aisopod/aisopod/internal/pairing"
	"github.com/aisopod/aisopod/internal/registry"
	"github.com/aisopod/aisopod/internal/serverstate"
)

// New constructs the HTTP handler for the gateway.
func New(cfg config.ServerConfig, gw *gateway.Gateway, reg *registry.Registry, pairs *pairing.Service) http.Handler {
	r := chi.NewRouter()
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
		}))
	}

	r.Handle(cfg.WSPath, gw.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/state", stateHandler(reg, pairs))
	if cfg.MetricsAddr == fmt.Sprintf(":%d", cfg.Port) {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

type statePage struct {
	Status          string                  `json:"status"`
	Draining        bool                    `json:"draining"`
	Connections     registry.HealthSnapshot `json:"connections"`
	PendingPairings int                     `json:"pending_pairings"`
}

func stateHandler(reg *registry.Registry, pairs *pairing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		page := statePage{
			Status:          serverstate.GetState(),
			Draining:        serverstate.IsDraining(),
			Connections:     reg.Health(),
			PendingPairings: pairs.PendingCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(page)
	}
}
