package surface

import (
	"encoding/json"
	"log/slog"
)

// Subscriber is one live duplex channel to a viewer. The transport layer owns
// the underlying connection; the service only holds a reference for routing
// and removes it on send or ping failure.
type Subscriber interface {
	Send(data []byte) error
	Ping() error
	Close() error
}

// addSub registers a subscriber. Idempotent. Caller holds e.mu.
func (e *entry) addSub(sub Subscriber) {
	e.subs[sub] = struct{}{}
}

// removeSub deregisters a subscriber if present. Caller holds e.mu.
func (e *entry) removeSub(sub Subscriber) {
	delete(e.subs, sub)
}

// broadcastLocked sends a message to every subscriber of the surface. A
// subscriber whose send fails is removed and closed; the failure never aborts
// delivery to the rest and is never surfaced to the mutating caller.
// Caller holds e.mu.
func (e *entry) broadcastLocked(msg Message) {
	if len(e.subs) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("broadcast encode failed", "surface_id", e.state.ID, "type", msg.Type, "error", err)
		return
	}
	for sub := range e.subs {
		if err := sub.Send(data); err != nil {
			slog.Debug("subscriber send failed, removing", "surface_id", e.state.ID, "error", err)
			delete(e.subs, sub)
			sub.Close()
		}
	}
}

// sendLocked delivers a message to a single subscriber, used for replay.
// Caller holds e.mu.
func (e *entry) sendLocked(sub Subscriber, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return sub.Send(data)
}

// snapshotSubs copies the subscriber set so callers can probe channels
// without holding the entry lock.
func (e *entry) snapshotSubs() []Subscriber {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Subscriber, 0, len(e.subs))
	for sub := range e.subs {
		out = append(out, sub)
	}
	return out
}
