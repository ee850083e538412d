package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/logger"
)

// State is the connection state of the session manager.
type State int32

// Session manager states. The manager loops Disconnected -> Connecting ->
// Connected -> Disconnected for as long as it runs.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String renders the state for logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

const (
	// DefaultInitialDelay is the wait before the first connection attempt.
	DefaultInitialDelay = time.Second
	// DefaultRetryInterval is the fixed period between reconnection checks.
	// Deliberately not exponential backoff: the client population is small
	// and fixed, and a constant interval keeps reconnection predictable.
	DefaultRetryInterval = 10 * time.Second
	// DefaultDialTimeout bounds one connection attempt.
	DefaultDialTimeout = 10 * time.Second
	// DefaultReadTimeout bounds one blocking read. A timeout means
	// "no data yet", not a broken connection.
	DefaultReadTimeout = 10 * time.Second
)

// Handler consumes decoded alarm events. receivedAt is the local receipt
// time, the fallback when the event timestamp is unparsable.
type Handler func(event *alarm.Event, receivedAt time.Time)

// Manager owns one outbound connection to the broadcast server: it
// maintains the reconnect loop, decodes the incoming stream and hands
// events to the registered handler.
type Manager struct {
	address string
	handler Handler

	initialDelay  time.Duration
	retryInterval time.Duration
	dialTimeout   time.Duration
	readTimeout   time.Duration

	state atomic.Int32

	mu   sync.Mutex
	conn net.Conn

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// ManagerOption configures the session manager.
type ManagerOption func(*Manager)

// WithInitialDelay overrides the wait before the first connection attempt.
func WithInitialDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.initialDelay = d
		}
	}
}

// WithRetryInterval overrides the fixed reconnection check period.
func WithRetryInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.retryInterval = d
		}
	}
}

// WithDialTimeout overrides the per-attempt connection timeout.
func WithDialTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.dialTimeout = d
		}
	}
}

// WithReadTimeout overrides the blocking read deadline.
func WithReadTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.readTimeout = d
		}
	}
}

// NewManager creates a stopped session manager for the provided server
// address.
func NewManager(address string, handler Handler, opts ...ManagerOption) *Manager {
	m := &Manager{
		address:       address,
		handler:       handler,
		initialDelay:  DefaultInitialDelay,
		retryInterval: DefaultRetryInterval,
		dialTimeout:   DefaultDialTimeout,
		readTimeout:   DefaultReadTimeout,
		stopCh:        make(chan struct{}),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start launches the reconnect scheduler in the background.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)

	go func() {
		defer m.wg.Done()
		m.run(ctx)
	}()
}

// Stop shuts the manager down: the socket is closed and both the reconnect
// scheduler and the read loop halt. Idempotent.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)

		m.mu.Lock()
		if m.conn != nil {
			_ = m.conn.Close()
		}
		m.mu.Unlock()
	})

	m.wg.Wait()
}

// run is the reconnect scheduler: first attempt after the initial delay,
// then a fixed-interval retry check after every disconnect.
func (m *Manager) run(ctx context.Context) {
	timer := time.NewTimer(m.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-timer.C:
		}

		if err := m.connectAndListen(ctx); err != nil {
			logger.WarnKV(ctx, "Connection lost, will retry",
				"server", m.address, "retry_in", m.retryInterval.String(), "error", err)
		}

		m.state.Store(int32(StateDisconnected))
		timer.Reset(m.retryInterval)
	}
}

// connectAndListen performs one connection attempt and, on success, runs
// the read loop until the stream breaks or the manager stops.
func (m *Manager) connectAndListen(ctx context.Context) error {
	m.state.Store(int32(StateConnecting))

	conn, err := net.DialTimeout("tcp", m.address, m.dialTimeout)
	if err != nil {
		return err //nolint:wrapcheck // Dial errors feed straight into the retry log.
	}

	m.mu.Lock()

	select {
	case <-m.stopCh:
		m.mu.Unlock()
		_ = conn.Close()

		return nil
	default:
	}

	m.conn = conn
	m.mu.Unlock()

	m.state.Store(int32(StateConnected))
	logger.InfoKV(ctx, "Connected to alarm server", "server", m.address)

	err = m.readLoop(ctx, conn)

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	_ = conn.Close()

	return err
}

// readLoop decodes the incoming stream. Heartbeats are discarded, decode
// failures are logged and skipped (one malformed message never terminates a
// healthy stream), and a zero-byte read ends the loop so the scheduler
// reconnects.
func (m *Manager) readLoop(ctx context.Context, conn net.Conn) error {
	reader := alarm.NewFrameReader(conn)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stopCh:
			return nil
		default:
		}

		if err := conn.SetReadDeadline(time.Now().Add(m.readTimeout)); err != nil {
			return err //nolint:wrapcheck // Deadline failure means the socket is gone.
		}

		frame, err := reader.Next()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// No data yet; the connection is still presumed healthy.
				continue
			}

			if errors.Is(err, alarm.ErrMalformedFrame) {
				logger.WarnKV(ctx, "Discarded malformed payload", "error", err)

				continue
			}

			return err //nolint:wrapcheck // EOF and friends drive the reconnect loop.
		}

		if frame.Heartbeat {
			logger.Debug(ctx, "Heartbeat received")

			continue
		}

		event, decodeErr := alarm.Decode(frame.Payload)
		if decodeErr != nil {
			logger.WarnKV(ctx, "Failed to decode alarm event", "error", decodeErr)

			continue
		}

		logger.InfoKV(ctx, "Alarm event received",
			"kind", event.Kind, "name", event.Name, "admin", event.Admin)

		if m.handler != nil {
			m.handler(event, time.Now())
		}
	}
}
