package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
)

// pipeClient wires one registered session to a reader goroutine that
// forwards everything the server writes.
func pipeClient(t *testing.T, registry *Registry) (*Session, chan []byte) {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() {
		_ = serverSide.Close()
		_ = clientSide.Close()
	})

	session := registry.Register(serverSide, time.Second)
	received := make(chan []byte, 1)

	go func() {
		buf := make([]byte, 64*1024)

		n, err := clientSide.Read(buf)
		if err != nil {
			return
		}

		received <- append([]byte(nil), buf[:n]...)
	}()

	return session, received
}

func TestBroadcaster_FansOutToEverySession(t *testing.T) {
	t.Parallel()

	const total = 5

	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)

	channels := make([]chan []byte, 0, total)
	for i := 0; i < total; i++ {
		_, received := pipeClient(t, registry)
		channels = append(channels, received)
	}

	event := alarm.New(alarm.Draft{Message: "Evacuate the east wing"}, "hq", "dispatcher")

	sent, failed, err := broadcaster.Broadcast(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, total, sent)
	require.Empty(t, failed)

	for _, received := range channels {
		select {
		case payload := <-received:
			decoded, decodeErr := alarm.Decode(payload)
			require.NoError(t, decodeErr)
			require.Equal(t, "Evacuate the east wing", decoded.Message)
			require.Equal(t, "dispatcher", decoded.Admin)
		case <-time.After(time.Second):
			t.Fatal("session did not receive the broadcast")
		}
	}
}

func TestBroadcaster_EvictsDeadSessionsAfterThePass(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)

	// Two healthy sessions.
	liveA, receivedA := pipeClient(t, registry)
	liveB, receivedB := pipeClient(t, registry)

	// Two dead ones: peers hang up before the broadcast.
	deadIDs := make([]uint64, 0, 2)

	for i := 0; i < 2; i++ {
		serverSide, clientSide := net.Pipe()
		session := registry.Register(serverSide, time.Second)
		deadIDs = append(deadIDs, session.ID())
		require.NoError(t, clientSide.Close())
	}

	event := alarm.New(alarm.Draft{Message: "Shelter in place"}, "hq", "dispatcher")

	sent, failed, err := broadcaster.Broadcast(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.ElementsMatch(t, deadIDs, failed)

	// The dead sessions are gone, the healthy ones survive.
	require.Equal(t, 2, registry.Len())
	for _, session := range registry.Snapshot() {
		require.NotContains(t, deadIDs, session.ID())
	}

	require.Contains(t, []uint64{liveA.ID(), liveB.ID()}, registry.Snapshot()[0].ID())

	for _, received := range []chan []byte{receivedA, receivedB} {
		select {
		case payload := <-received:
			decoded, decodeErr := alarm.Decode(payload)
			require.NoError(t, decodeErr)
			require.Equal(t, "Shelter in place", decoded.Message)
		case <-time.After(time.Second):
			t.Fatal("healthy session did not receive the broadcast")
		}
	}
}

func TestBroadcaster_EmptyRegistryIsNotAnError(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	broadcaster := NewBroadcaster(registry)

	event := alarm.New(alarm.Draft{Message: "Test alarm"}, "hq", "")

	sent, failed, err := broadcaster.Broadcast(context.Background(), event)
	require.NoError(t, err)
	require.Zero(t, sent)
	require.Empty(t, failed)
}
