package sender

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-broadcast/internal/config"
	"github.com/oshokin/alarm-broadcast/internal/protocol"
)

// fakeAdmin runs a canned admin plane on loopback and returns its address.
func fakeAdmin(t *testing.T, handler func(*protocol.Request) *protocol.Response) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = listener.Close()
	})

	go func() {
		for {
			conn, acceptErr := listener.Accept()
			if acceptErr != nil {
				return
			}

			go func(conn net.Conn) {
				defer func() {
					_ = conn.Close()
				}()

				reader := bufio.NewReader(conn)

				for {
					var request protocol.Request
					if err := protocol.ReadMessage(reader, &request); err != nil {
						return
					}

					if err := protocol.WriteMessage(conn, handler(&request)); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return listener.Addr().String()
}

// writeSettings persists a minimal config pointing at the fake admin plane.
func writeSettings(t *testing.T, adminAddress string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(path, &config.Config{
		ServerAddress: "127.0.0.1:9999",
		AdminAddress:  adminAddress,
	}))

	return path
}

func TestClient_BroadcastSetsOperation(t *testing.T) {
	t.Parallel()

	address := fakeAdmin(t, func(request *protocol.Request) *protocol.Response {
		if request.Op != protocol.OpBroadcast || request.Password != "secret" {
			return &protocol.Response{Error: "unexpected request"}
		}

		return &protocol.Response{OK: true, Sent: 3}
	})

	client, err := Dial(context.Background(), address, time.Second)
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	response, err := client.Broadcast(&protocol.Request{
		Password: "secret",
		Preset:   "fire",
		Message:  "drill",
	})
	require.NoError(t, err)
	require.True(t, response.OK)
	require.Equal(t, 3, response.Sent)
}

func TestClient_SequentialCallsReuseTheConnection(t *testing.T) {
	t.Parallel()

	calls := 0
	address := fakeAdmin(t, func(*protocol.Request) *protocol.Response {
		calls++

		return &protocol.Response{OK: true, Sent: calls}
	})

	client, err := Dial(context.Background(), address, time.Second)
	require.NoError(t, err)

	defer func() {
		_ = client.Close()
	}()

	first, err := client.Status("secret")
	require.NoError(t, err)

	second, err := client.Status("secret")
	require.NoError(t, err)

	require.Equal(t, first.Sent+1, second.Sent)
}

func TestRunSend_ReportsFanOutResult(t *testing.T) {
	t.Parallel()

	address := fakeAdmin(t, func(request *protocol.Request) *protocol.Response {
		if request.Message == "" {
			return &protocol.Response{Error: "message must not be empty"}
		}

		return &protocol.Response{OK: true, Sent: 2, Failed: 1}
	})

	var out bytes.Buffer

	err := RunSend(context.Background(), &Options{
		ConfigPath: writeSettings(t, address),
		Admin:      "dispatcher",
		Password:   "secret",
		Preset:     "fire",
		Message:    "Fire drill at noon",
	}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "2 client(s)")
	require.Contains(t, out.String(), "1 dead session(s)")
}

func TestRunSend_SurfacesServerRejection(t *testing.T) {
	t.Parallel()

	address := fakeAdmin(t, func(*protocol.Request) *protocol.Response {
		return &protocol.Response{Error: "invalid password"}
	})

	var out bytes.Buffer

	err := RunSend(context.Background(), &Options{
		ConfigPath: writeSettings(t, address),
		Password:   "wrong",
		Message:    "anything",
	}, &out)
	require.ErrorIs(t, err, ErrRejected)
	require.ErrorContains(t, err, "invalid password")
}

func TestRunStatus_PrintsRoster(t *testing.T) {
	t.Parallel()

	address := fakeAdmin(t, func(request *protocol.Request) *protocol.Response {
		if request.Op != protocol.OpStatus {
			return &protocol.Response{Error: "unexpected operation"}
		}

		return &protocol.Response{OK: true, Clients: []protocol.ClientInfo{
			{ID: 7, Address: "10.0.0.5:51234", LastHeartbeat: "2026-08-31T10:00:00Z"},
		}}
	})

	var out bytes.Buffer

	err := RunStatus(context.Background(), &Options{
		ConfigPath: writeSettings(t, address),
		Password:   "secret",
	}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "#7")
	require.Contains(t, out.String(), "10.0.0.5:51234")
}

func TestRunChangePassword(t *testing.T) {
	t.Parallel()

	address := fakeAdmin(t, func(request *protocol.Request) *protocol.Response {
		if request.Op != protocol.OpChangePassword || request.NewPassword != "rotated" {
			return &protocol.Response{Error: "unexpected request"}
		}

		return &protocol.Response{OK: true}
	})

	var out bytes.Buffer

	err := RunChangePassword(context.Background(), &Options{
		ConfigPath:  writeSettings(t, address),
		Admin:       "day shift",
		Password:    "secret",
		NewPassword: "rotated",
	}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "Password changed")
}

func TestRunPresets_ListsCatalog(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.NoError(t, RunPresets(&out))
	require.Contains(t, out.String(), "fire")
	require.Contains(t, out.String(), "CODE BLUE")
	require.Contains(t, out.String(), "active-shooter")
}
