// Package broadcast fans server-initiated events out to live
// connections. Delivery is best-effort per connection: a peer whose
// outbound queue overflows is disconnected rather than ever blocking
// the broadcaster.
package broadcast

import (
	"encoding/json"

	"github.com/aisopod/aisopod/internal/logx"
	"github.com/aisopod/aisopod/internal/metrics"
	"github.com/aisopod/aisopod/internal/registry"
)

// Event is one server-initiated notification pushed to clients.
type Event struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Filter selects which connections receive an event. A nil Filter
// matches everything.
type Filter func(registry.ClientRecord) bool

// RoleFilter matches connections with the given role.
func RoleFilter(role string) Filter {
	return func(rec registry.ClientRecord) bool {
		return rec.Role == role
	}
}

// Broadcaster enqueues events onto matching connections' outbound
// queues.
type Broadcaster struct {
	reg *registry.Registry
}

// New returns a Broadcaster over reg.
func New(reg *registry.Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Send delivers the named event to every connection accepted by
// filter and returns how many queues accepted it.
func (b *Broadcaster) Send(event string, payload any, filter Filter) (int, error) {
	frame, err := json.Marshal(Event{Type: "event", Event: event, Payload: payload})
	if err != nil {
		return 0, err
	}
	delivered := 0
	b.reg.Each(func(rec registry.ClientRecord, s registry.Sender) {
		if filter != nil && !filter(rec) {
			return
		}
		ok := s.TrySend(frame)
		metrics.RecordBroadcast(ok)
		if ok {
			delivered++
		} else {
			logx.Log.Warn().Str("conn_id", rec.ConnID).Str("event", event).Msg("broadcast dropped, peer disconnected")
		}
	})
	return delivered, nil
}
