package server

import (
	"context"

	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/logger"
)

// Broadcaster serializes an alarm event once and fans it out to every
// session in the registry. Delivery is unordered across clients; all of
// them receive byte-identical payloads.
//
// The broadcaster enforces no policy of its own: authentication of the
// triggering action happens one layer up, on the admin plane.
type Broadcaster struct {
	registry *Registry
}

// NewBroadcaster creates a dispatcher over the provided registry.
func NewBroadcaster(registry *Registry) *Broadcaster {
	return &Broadcaster{
		registry: registry,
	}
}

// Broadcast writes the event to every session in a registry snapshot and
// returns the number of successful writes plus the ids of evicted sessions.
// Failed sessions are collected during the pass and unregistered only after
// it completes; the registry is never mutated while its snapshot is walked.
//
// sent == 0 with sessions present is not an error: the result is surfaced to
// the operator, who decides whether to retry.
func (b *Broadcaster) Broadcast(ctx context.Context, event *alarm.Event) (int, []uint64, error) {
	payload, err := event.Encode()
	if err != nil {
		return 0, nil, err
	}

	var (
		snapshot = b.registry.Snapshot()
		failed   []uint64
		sent     int
	)

	for _, session := range snapshot {
		if writeErr := session.Write(payload); writeErr != nil {
			logger.WarnKV(ctx, "Broadcast write failed, evicting session",
				"session_id", session.ID(), "peer", session.PeerAddress(), "error", writeErr)

			failed = append(failed, session.ID())

			continue
		}

		sent++
	}

	for _, id := range failed {
		b.registry.Unregister(id)
	}

	logger.InfoKV(ctx, "Alarm broadcast",
		"kind", event.Kind, "name", event.Name, "admin", event.Admin,
		"sent", sent, "failed", len(failed))

	return sent, failed, nil
}
