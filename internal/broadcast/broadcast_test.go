package broadcast

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/aisopod/aisopod/internal/registry"
)

type fakeSender struct {
	mu     sync.Mutex
	frames [][]byte
	full   bool
	kicked bool
}

func (f *fakeSender) TrySend(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		f.kicked = true
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSender) Kick(string) {}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func connect(reg *registry.Registry, id, role string) *fakeSender {
	s := &fakeSender{}
	reg.OnConnect(registry.ClientRecord{ConnID: id, Role: role, ConnectedAt: time.Now()}, s)
	return s
}

func TestBroadcastReachesEveryClientOnce(t *testing.T) {
	reg := registry.New()
	senders := []*fakeSender{
		connect(reg, "c1", "operator"),
		connect(reg, "c2", "node"),
		connect(reg, "c3", "node"),
	}
	gone := connect(reg, "c4", "node")
	reg.OnDisconnect("c4")

	b := New(reg)
	n, err := b.Send("agent.status", map[string]string{"state": "idle"}, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 3 {
		t.Fatalf("delivered = %d; want 3", n)
	}
	for i, s := range senders {
		if s.count() != 1 {
			t.Fatalf("sender %d received %d frames; want 1", i, s.count())
		}
	}
	if gone.count() != 0 {
		t.Fatalf("disconnected client received %d frames", gone.count())
	}

	var ev Event
	if err := json.Unmarshal(senders[0].frames[0], &ev); err != nil {
		t.Fatalf("frame: %v", err)
	}
	if ev.Type != "event" || ev.Event != "agent.status" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestRoleFilter(t *testing.T) {
	reg := registry.New()
	op := connect(reg, "c1", "operator")
	node := connect(reg, "c2", "node")

	b := New(reg)
	n, err := b.Send("node.update", nil, RoleFilter("node"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 1 {
		t.Fatalf("delivered = %d; want 1", n)
	}
	if op.count() != 0 || node.count() != 1 {
		t.Fatalf("operator %d, node %d frames", op.count(), node.count())
	}
}

func TestSlowConsumerDoesNotBlock(t *testing.T) {
	reg := registry.New()
	slow := connect(reg, "slow", "node")
	slow.full = true
	fast := connect(reg, "fast", "node")

	b := New(reg)
	n, err := b.Send("tick", nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if n != 1 {
		t.Fatalf("delivered = %d; want 1", n)
	}
	if !slow.kicked {
		t.Fatalf("overflowing sender not asked to drop")
	}
	if fast.count() != 1 {
		t.Fatalf("fast client starved by slow peer")
	}
}
