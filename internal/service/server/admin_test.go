package server

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-broadcast/internal/creds"
	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/protocol"
	"github.com/oshokin/alarm-broadcast/internal/repository/history"
)

const testAdminPassword = "operator-secret"

// adminFixture is a full control plane wired to a running broadcast core
// and a SQLite audit log, all on loopback ephemeral ports.
type adminFixture struct {
	core  *Server
	admin *Admin
	store *creds.Store
	audit *history.Store
}

func newAdminFixture(t *testing.T) *adminFixture {
	t.Helper()

	ctx := context.Background()
	dir := t.TempDir()

	stored, err := creds.Hash(testAdminPassword)
	require.NoError(t, err)

	passwordPath := filepath.Join(dir, "password.txt")
	require.NoError(t, os.WriteFile(passwordPath, []byte(stored), 0o600))

	store, err := creds.Load(passwordPath)
	require.NoError(t, err)

	audit, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = audit.Close()
	})

	core := NewServer("127.0.0.1:0", WithWriteTimeout(time.Second))
	require.NoError(t, core.Start(ctx))
	t.Cleanup(core.Stop)

	admin := NewAdmin("127.0.0.1:0", "hq", store, audit, core)
	require.NoError(t, admin.Start(ctx))
	t.Cleanup(admin.Stop)

	return &adminFixture{core: core, admin: admin, store: store, audit: audit}
}

// call performs one request/response exchange on a fresh admin connection.
func (f *adminFixture) call(t *testing.T, request *protocol.Request) *protocol.Response {
	t.Helper()

	conn, err := net.Dial("tcp", f.admin.Addr())
	require.NoError(t, err)

	defer func() {
		_ = conn.Close()
	}()

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, protocol.WriteMessage(conn, request))

	var response protocol.Response
	require.NoError(t, protocol.ReadMessage(bufio.NewReader(conn), &response))

	return &response
}

func TestAdmin_RejectsWrongPassword(t *testing.T) {
	t.Parallel()

	fixture := newAdminFixture(t)

	response := fixture.call(t, &protocol.Request{
		Op:       protocol.OpStatus,
		Admin:    "mallory",
		Password: "not-the-password",
	})

	require.False(t, response.OK)
	require.Equal(t, "invalid password", response.Error)

	// The rejection lands in the audit log.
	events, err := fixture.audit.RecentSecurityEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, history.EventAuthFailure, events[0].Kind)
}

func TestAdmin_BroadcastReachesConnectedClient(t *testing.T) {
	t.Parallel()

	fixture := newAdminFixture(t)

	client, err := net.Dial("tcp", fixture.core.Addr())
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	require.Eventually(t, func() bool {
		return len(fixture.core.Roster()) == 1
	}, time.Second, 10*time.Millisecond)

	response := fixture.call(t, &protocol.Request{
		Op:       protocol.OpBroadcast,
		Admin:    "night shift",
		Password: testAdminPassword,
		Preset:   "fire",
		Message:  "Fire reported on floor 2",
	})

	require.True(t, response.OK)
	require.Equal(t, 1, response.Sent)
	require.Zero(t, response.Failed)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))

	frame, err := alarm.NewFrameReader(client).Next()
	require.NoError(t, err)
	require.False(t, frame.Heartbeat)

	event, err := alarm.Decode(frame.Payload)
	require.NoError(t, err)
	require.Equal(t, "fire", event.Kind)
	require.Equal(t, "Fire reported on floor 2", event.Message)
	require.Equal(t, "night shift", event.Admin)
	require.Equal(t, "hq", event.Server)

	// The fan-out result is persisted.
	records, err := fixture.audit.RecentBroadcasts(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "fire", records[0].Kind)
	require.Equal(t, 1, records[0].Sent)
}

func TestAdmin_BroadcastValidation(t *testing.T) {
	t.Parallel()

	fixture := newAdminFixture(t)

	// Empty message is rejected before any dispatch.
	response := fixture.call(t, &protocol.Request{
		Op:       protocol.OpBroadcast,
		Password: testAdminPassword,
		Preset:   "fire",
	})
	require.False(t, response.OK)
	require.Contains(t, response.Error, "message")

	// Unknown presets are rejected too.
	response = fixture.call(t, &protocol.Request{
		Op:       protocol.OpBroadcast,
		Password: testAdminPassword,
		Preset:   "flood",
		Message:  "water rising",
	})
	require.False(t, response.OK)
	require.Contains(t, response.Error, "flood")
}

func TestAdmin_StatusReportsRoster(t *testing.T) {
	t.Parallel()

	fixture := newAdminFixture(t)

	client, err := net.Dial("tcp", fixture.core.Addr())
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	require.Eventually(t, func() bool {
		return len(fixture.core.Roster()) == 1
	}, time.Second, 10*time.Millisecond)

	response := fixture.call(t, &protocol.Request{
		Op:       protocol.OpStatus,
		Password: testAdminPassword,
	})

	require.True(t, response.OK)
	require.Len(t, response.Clients, 1)
	require.NotZero(t, response.Clients[0].ID)
	require.NotEmpty(t, response.Clients[0].Address)
}

func TestAdmin_ChangePassword(t *testing.T) {
	t.Parallel()

	fixture := newAdminFixture(t)

	response := fixture.call(t, &protocol.Request{
		Op:          protocol.OpChangePassword,
		Admin:       "day shift",
		Password:    testAdminPassword,
		NewPassword: "rotated-secret",
	})
	require.True(t, response.OK)

	// Old credential no longer works, the new one does.
	require.False(t, fixture.store.Verify(testAdminPassword))
	require.True(t, fixture.store.Verify("rotated-secret"))

	events, err := fixture.audit.RecentSecurityEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, history.EventPasswordChange, events[0].Kind)

	// Subsequent calls authenticate with the rotated credential.
	status := fixture.call(t, &protocol.Request{
		Op:       protocol.OpStatus,
		Password: "rotated-secret",
	})
	require.True(t, status.OK)
}

func TestAdmin_UnknownOperation(t *testing.T) {
	t.Parallel()

	fixture := newAdminFixture(t)

	response := fixture.call(t, &protocol.Request{
		Op:       "reboot",
		Password: testAdminPassword,
	})

	require.False(t, response.OK)
	require.Contains(t, response.Error, "reboot")
}
