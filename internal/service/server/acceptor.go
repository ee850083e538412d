package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/logger"
)

// acceptRetryDelay spaces out retries after a failed accept so resource
// exhaustion does not spin the loop.
const acceptRetryDelay = time.Second

// ErrAlreadyListening is returned when Start is called on a listening server.
var ErrAlreadyListening = errors.New("server is already listening")

// Server is the broadcast network core: it accepts client connections,
// keeps the live roster, heartbeats every session and fans out alarms.
// Clients need no handshake to receive broadcasts; only the sending side is
// authenticated, on the admin plane.
type Server struct {
	address           string
	writeTimeout      time.Duration
	heartbeatInterval time.Duration

	registry    *Registry
	broadcaster *Broadcaster

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Option configures the broadcast server.
type Option func(*Server)

// WithHeartbeatInterval overrides the liveness probe period.
func WithHeartbeatInterval(interval time.Duration) Option {
	return func(s *Server) {
		if interval > 0 {
			s.heartbeatInterval = interval
		}
	}
}

// WithWriteTimeout overrides the per-write deadline on session sockets.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.writeTimeout = timeout
		}
	}
}

// NewServer creates a stopped broadcast server bound to nothing yet.
func NewServer(address string, opts ...Option) *Server {
	registry := NewRegistry()

	s := &Server{
		address:           address,
		writeTimeout:      config.DefaultTimeout,
		heartbeatInterval: DefaultHeartbeatInterval,
		registry:          registry,
		broadcaster:       NewBroadcaster(registry),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start opens the listening socket and begins accepting connections.
// Listener creation failure is reported to the caller and the server stays
// stopped. After Stop the server may be started again.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyListening
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return err //nolint:wrapcheck // Bind errors are surfaced as-is to the caller.
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.listener = listener
	s.cancel = cancel

	logger.InfoKV(ctx, "Broadcast server listening", "address", listener.Addr().String())

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		s.acceptLoop(loopCtx, listener)
	}()

	return nil
}

// Stop closes the listening socket and every registered session, then waits
// for the per-session loops to drain. Idempotent.
func (s *Server) Stop() {
	s.mu.Lock()

	listener := s.listener
	cancel := s.cancel
	s.listener = nil
	s.cancel = nil

	s.mu.Unlock()

	if listener == nil {
		return
	}

	cancel()
	_ = listener.Close()
	s.registry.CloseAll()
	s.wg.Wait()
}

// Addr returns the bound listener address, or empty when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// acceptLoop registers every accepted connection and spawns its heartbeat
// participation. A single failed accept is logged and retried; it never
// terminates the loop.
func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}

			logger.ErrorKV(ctx, "Accept failed, retrying", "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}

			continue
		}

		session := s.registry.Register(conn, s.writeTimeout)

		logger.InfoKV(ctx, "Client connected",
			"session_id", session.ID(), "peer", session.PeerAddress(),
			"clients", s.registry.Len())

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			s.heartbeatLoop(ctx, session)
		}()
	}
}

// Broadcast fans the event out to every connected session.
func (s *Server) Broadcast(ctx context.Context, event *alarm.Event) (int, []uint64, error) {
	return s.broadcaster.Broadcast(ctx, event)
}

// Roster returns a snapshot of the connected sessions.
func (s *Server) Roster() []*Session {
	return s.registry.Snapshot()
}
