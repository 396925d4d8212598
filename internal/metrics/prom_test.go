package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPromMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	SetBuildInfo("1.0.0", "abc", "2024-01-01")
	RecordConnect("node")
	RecordRequest("chat.send", true)
	RecordRequest("chat.send", false)
	RecordRateLimited()
	RecordBroadcast(true)
	RecordBroadcast(false)
	RecordPairing("request", true)

	if v := testutil.ToFloat64(connections.WithLabelValues("node")); v != 1 {
		t.Fatalf("connections: %v", v)
	}
	if v := testutil.ToFloat64(requestsTotal.WithLabelValues("chat.send", "success")); v != 1 {
		t.Fatalf("request successes: %v", v)
	}
	if v := testutil.ToFloat64(requestsTotal.WithLabelValues("chat.send", "error")); v != 1 {
		t.Fatalf("request errors: %v", v)
	}
	if v := testutil.ToFloat64(rateLimited); v != 1 {
		t.Fatalf("rate limited: %v", v)
	}
	if v := testutil.ToFloat64(broadcasts.WithLabelValues("dropped")); v != 1 {
		t.Fatalf("dropped broadcasts: %v", v)
	}
	if v := testutil.ToFloat64(pairings.WithLabelValues("request", "success")); v != 1 {
		t.Fatalf("pairing ops: %v", v)
	}
	if v := testutil.ToFloat64(buildInfo.WithLabelValues("2024-01-01", "abc", "1.0.0")); v != 1 {
		t.Fatalf("build info: %v", v)
	}

	RecordDisconnect("node", "heartbeat timeout", 3*time.Second)
	if v := testutil.ToFloat64(connections.WithLabelValues("node")); v != 0 {
		t.Fatalf("connections after disconnect: %v", v)
	}
	if v := testutil.ToFloat64(disconnectsTotal.WithLabelValues("heartbeat timeout")); v != 1 {
		t.Fatalf("disconnects: %v", v)
	}
}
