package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aisopod/aisopod/internal/auth"
	"github.com/aisopod/aisopod/internal/config"
	"github.com/aisopod/aisopod/internal/gateway"
	"github.com/aisopod/aisopod/internal/logx"
	"github.com/aisopod/aisopod/internal/metrics"
	"github.com/aisopod/aisopod/internal/pairing"
	"github.com/aisopod/aisopod/internal/ratelimit"
	"github.com/aisopod/aisopod/internal/registry"
	"github.com/aisopod/aisopod/internal/router"
	"github.com/aisopod/aisopod/internal/secret"
	"github.com/aisopod/aisopod/internal/server"
	"github.com/aisopod/aisopod/internal/serverstate"
)

var (
	version   = "dev"
	buildSHA  = "unknown"
	buildDate = "unknown"
)

// namespaces is the full method surface; namespaces without real
// handlers answer through the not-implemented placeholder so the
// surface stays discoverable.
var namespaces = []string{"chat", "agent", "session", "system", "node"}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	var cfg config.ServerConfig
	// Resolve config with precedence: defaults < file < env < flags
	cfg.SetDefaults()
	cfg.ApplyEnv() // allows CONFIG_FILE from env
	// Allow --config to override the file path before loading it
	for i := 1; i < len(os.Args); i++ {
		a := os.Args[i]
		if a == "--config" && i+1 < len(os.Args) {
			cfg.ConfigFile = os.Args[i+1]
			break
		}
		if strings.HasPrefix(a, "--config=") {
			cfg.ConfigFile = strings.TrimPrefix(a, "--config=")
			break
		}
	}
	if cfg.ConfigFile != "" {
		if err := cfg.LoadFile(cfg.ConfigFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			logx.Log.Fatal().Err(err).Str("path", cfg.ConfigFile).Msg("load config")
		}
	}
	// Overlay env (after file) and then bind flags; args parsed below
	cfg.ApplyEnv()
	cfg.BindFlagsFromCurrent()
	flag.Usage = func() {
		_, _ = fmt.Fprintf(flag.CommandLine.Output(), "aisopod version=%s sha=%s date=%s\n\n", version, buildSHA, buildDate)
		flag.PrintDefaults()
	}
	flag.Parse()
	if *showVersion {
		fmt.Printf("aisopod version=%s sha=%s date=%s\n", version, buildSHA, buildDate)
		return
	}
	logx.Configure(cfg.LogLevel)

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.SetBuildInfo(version, buildSHA, buildDate)

	tokens := pairing.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rs, err := pairing.NewRedisStore(cfg.RedisAddr)
		if err != nil {
			logx.Log.Fatal().Err(err).Msg("connect redis")
		}
		tokens = rs
		logx.Log.Info().Str("addr", cfg.RedisAddr).Msg("using redis device token store")
	}
	pairs := pairing.NewService(tokens, cfg.PairingTTL)

	var gate *auth.Gate
	if cfg.NoAuth() {
		gate = auth.NewOpenGate(cfg.DefaultRole)
		logx.Log.Warn().Msg("no auth token or password configured; accepting all clients")
	} else {
		gate = auth.NewGate(auth.StaticSource{
			Token:    cfg.AuthToken,
			Password: cfg.Password,
			Role:     cfg.DefaultRole,
			Scopes:   []string{"*"},
		}, pairs)
		logx.Log.Info().
			Str("token", secret.Mask(cfg.AuthToken)).
			Str("password", secret.Mask(cfg.Password)).
			Msg("auth required for client connections")
	}

	rtr := router.New()
	for _, ns := range namespaces {
		rtr.RegisterNamespace(ns, router.NotImplemented)
	}
	pairing.RegisterHandlers(rtr, pairs)

	reg := registry.New()
	limiter := ratelimit.New(cfg.RateLimitPerSec, cfg.RateLimitBurst)
	gw := gateway.New(reg, rtr, gate, limiter, gateway.Options{
		HandshakeTimeout: cfg.HandshakeTimeout,
		PingInterval:     cfg.PingInterval,
		PongTimeout:      cfg.PongTimeout,
		SendQueueSize:    cfg.SendQueueSize,
		ServerVersion:    version,
		AllowedOrigins:   cfg.AllowedOrigins,
	})

	handler := server.New(cfg, gw, reg, pairs)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: handler}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != fmt.Sprintf(":%d", cfg.Port) {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go pairs.Run(ctx, cfg.PairingSweep)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.PruneIdle(10 * time.Minute)
			case <-ctx.Done():
				return
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			if serverstate.IsDraining() || cfg.DrainTimeout == 0 {
				logx.Log.Warn().Msg("termination requested")
				cancel()
				return
			}
			serverstate.StartDrain()
			logx.Log.Info().Dur("timeout", cfg.DrainTimeout).Msg("draining; send SIGTERM again to terminate immediately")
			go func(d time.Duration) {
				deadline := time.NewTimer(d)
				defer deadline.Stop()
				tick := time.NewTicker(time.Second)
				defer tick.Stop()
				for {
					select {
					case <-deadline.C:
						cancel()
						return
					case <-tick.C:
						if reg.Count() == 0 {
							cancel()
							return
						}
					case <-ctx.Done():
						return
					}
				}
			}(cfg.DrainTimeout)
		}
	}()

	go func() {
		<-ctx.Done()
		reg.CloseAll("gateway shutting down")
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutCtx)
		}
	}()

	if metricsSrv != nil {
		go func() {
			logx.Log.Info().Str("addr", metricsSrv.Addr).Msg("metrics listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Log.Error().Err(err).Msg("metrics server")
			}
		}()
	}

	serverstate.SetState("ready")
	logx.Log.Info().Int("port", cfg.Port).Str("ws_path", cfg.WSPath).Str("version", version).Msg("gateway listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logx.Log.Fatal().Err(err).Msg("server")
	}
	serverstate.SetState("stopped")
}
