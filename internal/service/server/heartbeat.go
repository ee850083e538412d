package server

import (
	"context"
	"time"

	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/logger"
)

// DefaultHeartbeatInterval is the period between liveness probes per session.
const DefaultHeartbeatInterval = 30 * time.Second

// heartbeatLoop probes one session until it dies or the server stops. Every
// accepted connection gets its own loop. A failed probe write means the peer
// is gone: the session is unregistered immediately, with no retry. This is
// the sole mechanism for detecting silently-dead clients; there is no
// disconnect handshake.
func (s *Server) heartbeatLoop(ctx context.Context, session *Session) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := session.Write(alarm.Heartbeat); err != nil {
				logger.InfoKV(ctx, "Heartbeat failed, removing session",
					"session_id", session.ID(), "peer", session.PeerAddress(), "error", err)

				s.registry.Unregister(session.ID())

				return
			}

			session.touchHeartbeat()
		}
	}
}
