package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "aisopod_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "gateway"},
		},
		[]string{"date", "sha", "version"},
	)

	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aisopod_connections",
			Help: "Currently connected clients",
		},
		[]string{"role"},
	)

	connectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisopod_connects_total",
			Help: "Completed handshakes",
		},
		[]string{"role"},
	)

	disconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisopod_disconnects_total",
			Help: "Closed connections by reason",
		},
		[]string{"reason"},
	)

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisopod_requests_total",
			Help: "Inbound RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	rateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aisopod_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisopod_broadcast_events_total",
			Help: "Broadcast events by delivery outcome",
		},
		[]string{"outcome"},
	)

	pairings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aisopod_pairing_operations_total",
			Help: "Device pairing operations by kind and outcome",
		},
		[]string{"op", "outcome"},
	)

	connectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aisopod_connection_duration_seconds",
			Help:    "Lifetime of closed connections",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, connections, connectsTotal, disconnectsTotal, requestsTotal, rateLimited, broadcasts, pairings, connectionDuration)
}

// SetBuildInfo sets the build info metric for the gateway.
func SetBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// RecordConnect tracks a completed handshake.
func RecordConnect(role string) {
	connections.WithLabelValues(role).Inc()
	connectsTotal.WithLabelValues(role).Inc()
}

// RecordDisconnect tracks a closed connection and its lifetime.
func RecordDisconnect(role, reason string, d time.Duration) {
	connections.WithLabelValues(role).Dec()
	disconnectsTotal.WithLabelValues(reason).Inc()
	connectionDuration.Observe(d.Seconds())
}

// RecordRequest counts one inbound request.
func RecordRequest(method string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	requestsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordRateLimited counts a rate limiter rejection.
func RecordRateLimited() {
	rateLimited.Inc()
}

// RecordBroadcast counts per-connection broadcast deliveries.
func RecordBroadcast(delivered bool) {
	outcome := "delivered"
	if !delivered {
		outcome = "dropped"
	}
	broadcasts.WithLabelValues(outcome).Inc()
}

// RecordPairing counts a pairing operation.
func RecordPairing(op string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	pairings.WithLabelValues(op, outcome).Inc()
}
