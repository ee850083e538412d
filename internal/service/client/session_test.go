package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
)

// fastOptions keeps the reconnect machinery responsive enough for tests.
func fastOptions() []ManagerOption {
	return []ManagerOption{
		WithInitialDelay(20 * time.Millisecond),
		WithRetryInterval(50 * time.Millisecond),
		WithDialTimeout(time.Second),
		WithReadTimeout(100 * time.Millisecond),
	}
}

// acceptOne waits for a single inbound connection.
func acceptOne(t *testing.T, listener net.Listener) net.Conn {
	t.Helper()

	type result struct {
		conn net.Conn
		err  error
	}

	done := make(chan result, 1)

	go func() {
		conn, err := listener.Accept()
		done <- result{conn: conn, err: err}
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		t.Cleanup(func() {
			_ = r.conn.Close()
		})

		return r.conn
	case <-time.After(2 * time.Second):
		t.Fatal("no client connected")

		return nil
	}
}

func encodeEvent(t *testing.T, message string) []byte {
	t.Helper()

	payload, err := alarm.New(alarm.Draft{Message: message}, "hq", "guard").Encode()
	require.NoError(t, err)

	return payload
}

func TestManager_ConnectsOnceServerComesUp(t *testing.T) {
	t.Parallel()

	// Reserve an address, then shut the listener so the first attempts fail.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	address := probe.Addr().String()
	require.NoError(t, probe.Close())

	received := make(chan *alarm.Event, 1)
	manager := NewManager(address, func(event *alarm.Event, _ time.Time) {
		received <- event
	}, fastOptions()...)

	manager.Start(context.Background())

	defer manager.Stop()

	// Let a few attempts fail against the dead address.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, StateDisconnected, manager.State())

	listener, err := net.Listen("tcp", address)
	require.NoError(t, err)

	defer func() {
		_ = listener.Close()
	}()

	conn := acceptOne(t, listener)

	require.Eventually(t, func() bool {
		return manager.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	_, err = conn.Write(encodeEvent(t, "Door held open"))
	require.NoError(t, err)

	select {
	case event := <-received:
		require.Equal(t, "Door held open", event.Message)
		require.Equal(t, "guard", event.Admin)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestManager_SurvivesHeartbeatsAndGarbage(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = listener.Close()
	}()

	received := make(chan *alarm.Event, 4)
	manager := NewManager(listener.Addr().String(), func(event *alarm.Event, _ time.Time) {
		received <- event
	}, fastOptions()...)

	manager.Start(context.Background())

	defer manager.Stop()

	conn := acceptOne(t, listener)

	require.Eventually(t, func() bool {
		return manager.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	// A liveness probe is consumed silently.
	_, err = conn.Write(alarm.Heartbeat)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	// Garbage is discarded without tearing the connection down.
	_, err = conn.Write([]byte("pong!!"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	_, err = conn.Write(encodeEvent(t, "All clear"))
	require.NoError(t, err)

	select {
	case event := <-received:
		require.Equal(t, "All clear", event.Message)
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	// Neither the probe nor the garbage produced a callback, and the
	// connection is still up.
	require.Empty(t, received)
	require.Equal(t, StateConnected, manager.State())
}

func TestManager_ReconnectsAfterServerDropsTheLink(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = listener.Close()
	}()

	received := make(chan *alarm.Event, 2)
	manager := NewManager(listener.Addr().String(), func(event *alarm.Event, _ time.Time) {
		received <- event
	}, fastOptions()...)

	manager.Start(context.Background())

	defer manager.Stop()

	first := acceptOne(t, listener)

	_, err = first.Write(encodeEvent(t, "Before the drop"))
	require.NoError(t, err)

	select {
	case event := <-received:
		require.Equal(t, "Before the drop", event.Message)
	case <-time.After(time.Second):
		t.Fatal("first event was not delivered")
	}

	// Server hangs up; the manager must come back on its own.
	require.NoError(t, first.Close())

	second := acceptOne(t, listener)

	require.Eventually(t, func() bool {
		return manager.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	_, err = second.Write(encodeEvent(t, "After the drop"))
	require.NoError(t, err)

	select {
	case event := <-received:
		require.Equal(t, "After the drop", event.Message)
	case <-time.After(time.Second):
		t.Fatal("second event was not delivered")
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	defer func() {
		_ = listener.Close()
	}()

	manager := NewManager(listener.Addr().String(), nil, fastOptions()...)
	manager.Start(context.Background())

	acceptOne(t, listener)

	require.Eventually(t, func() bool {
		return manager.State() == StateConnected
	}, time.Second, 10*time.Millisecond)

	manager.Stop()
	manager.Stop()

	require.Equal(t, StateDisconnected, manager.State())
}
