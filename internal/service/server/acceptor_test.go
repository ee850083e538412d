package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_StartStopRestart(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := NewServer("127.0.0.1:0")

	require.NoError(t, srv.Start(ctx))
	require.NotEmpty(t, srv.Addr())

	// A second Start on a listening server is rejected.
	require.ErrorIs(t, srv.Start(ctx), ErrAlreadyListening)

	srv.Stop()
	require.Empty(t, srv.Addr())

	// Stop is idempotent and the server is restartable afterwards.
	srv.Stop()
	require.NoError(t, srv.Start(ctx))

	defer srv.Stop()

	require.NotEmpty(t, srv.Addr())
}

func TestServer_AcceptedClientJoinsRoster(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := NewServer("127.0.0.1:0", WithWriteTimeout(time.Second))

	require.NoError(t, srv.Start(ctx))

	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)

	defer func() {
		_ = conn.Close()
	}()

	require.Eventually(t, func() bool {
		return len(srv.Roster()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestServer_HeartbeatEvictsDeadClient(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := NewServer("127.0.0.1:0",
		WithHeartbeatInterval(50*time.Millisecond),
		WithWriteTimeout(time.Second))

	require.NoError(t, srv.Start(ctx))

	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(srv.Roster()) == 1
	}, time.Second, 10*time.Millisecond)

	// A live client sees the raw 4-byte probe on the wire.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	probe := make([]byte, 4)
	_, err = io.ReadFull(conn, probe)
	require.NoError(t, err)
	require.Equal(t, "ping", string(probe))

	// After the client dies, probe writes start failing and the session is
	// removed without any disconnect handshake.
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return len(srv.Roster()) == 0
	}, 3*time.Second, 20*time.Millisecond)
}

func TestServer_StopClosesClientConnections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	srv := NewServer("127.0.0.1:0", WithWriteTimeout(time.Second))

	require.NoError(t, srv.Start(ctx))

	conn, err := net.Dial("tcp", srv.Addr())
	require.NoError(t, err)

	defer func() {
		_ = conn.Close()
	}()

	require.Eventually(t, func() bool {
		return len(srv.Roster()) == 1
	}, time.Second, 10*time.Millisecond)

	srv.Stop()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}
