package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oshokin/alarm-broadcast/internal/creds"
	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
	"github.com/oshokin/alarm-broadcast/internal/logger"
	"github.com/oshokin/alarm-broadcast/internal/protocol"
	"github.com/oshokin/alarm-broadcast/internal/repository/history"
)

// adminIdleTimeout closes admin connections that stop sending requests.
const adminIdleTimeout = time.Minute

// Admin is the control plane: a JSON-line listener through which operators
// trigger broadcasts, inspect the roster and change the credential. This is
// the layer that authenticates; the dispatcher below it never rejects.
type Admin struct {
	address string
	origin  string
	store   *creds.Store
	audit   *history.Store
	core    *Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewAdmin creates a stopped admin listener. origin is recorded as the
// Server field of every built event; audit may be nil to disable history.
func NewAdmin(address, origin string, store *creds.Store, audit *history.Store, core *Server) *Admin {
	return &Admin{
		address: address,
		origin:  origin,
		store:   store,
		audit:   audit,
		core:    core,
	}
}

// Start opens the admin listening socket.
func (a *Admin) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener != nil {
		return ErrAlreadyListening
	}

	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", a.address)
	if err != nil {
		return err //nolint:wrapcheck // Bind errors are surfaced as-is to the caller.
	}

	loopCtx, cancel := context.WithCancel(ctx)
	a.listener = listener
	a.cancel = cancel

	logger.InfoKV(ctx, "Admin listener ready", "address", listener.Addr().String())

	a.wg.Add(1)

	go func() {
		defer a.wg.Done()
		a.acceptLoop(loopCtx, listener)
	}()

	return nil
}

// Stop closes the admin listener and waits for in-flight handlers.
func (a *Admin) Stop() {
	a.mu.Lock()

	listener := a.listener
	cancel := a.cancel
	a.listener = nil
	a.cancel = nil

	a.mu.Unlock()

	if listener == nil {
		return
	}

	cancel()
	_ = listener.Close()
	a.wg.Wait()
}

// Addr returns the bound admin address, or empty when stopped.
func (a *Admin) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.listener == nil {
		return ""
	}

	return a.listener.Addr().String()
}

func (a *Admin) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}

			logger.ErrorKV(ctx, "Admin accept failed, retrying", "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptRetryDelay):
			}

			continue
		}

		a.wg.Add(1)

		go func() {
			defer a.wg.Done()
			a.handleConn(ctx, conn)
		}()
	}
}

// handleConn serves one operator connection: requests in, responses out,
// one JSON line each, until EOF or idle timeout.
func (a *Admin) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	ctx = logger.WithKV(ctx, "admin_peer", conn.RemoteAddr().String())
	reader := bufio.NewReader(conn)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(adminIdleTimeout)); err != nil {
			return
		}

		var request protocol.Request
		if err := protocol.ReadMessage(reader, &request); err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logger.DebugKV(ctx, "Admin connection closed", "error", err)
			}

			return
		}

		response := a.handle(ctx, &request)

		if err := conn.SetWriteDeadline(time.Now().Add(adminIdleTimeout)); err != nil {
			return
		}

		if err := protocol.WriteMessage(conn, response); err != nil {
			logger.WarnKV(ctx, "Admin response write failed", "error", err)

			return
		}
	}
}

// handle authenticates and executes one admin request.
func (a *Admin) handle(ctx context.Context, request *protocol.Request) *protocol.Response {
	if !a.store.Verify(request.Password) {
		a.recordSecurityEvent(ctx, history.EventAuthFailure,
			fmt.Sprintf("operation %q rejected for admin %q", request.Op, request.Admin))
		logger.WarnKV(ctx, "Admin authentication failed", "op", request.Op, "admin", request.Admin)

		return &protocol.Response{Error: "invalid password"}
	}

	switch request.Op {
	case protocol.OpBroadcast:
		return a.handleBroadcast(ctx, request)
	case protocol.OpStatus:
		return a.handleStatus()
	case protocol.OpChangePassword:
		return a.handleChangePassword(ctx, request)
	default:
		return &protocol.Response{Error: fmt.Sprintf("unknown operation %q", request.Op)}
	}
}

func (a *Admin) handleBroadcast(ctx context.Context, request *protocol.Request) *protocol.Response {
	if request.Message == "" {
		return &protocol.Response{Error: "message must not be empty"}
	}

	var draft alarm.Draft

	if request.Preset != "" {
		preset, ok := alarm.PresetByKind(request.Preset)
		if !ok {
			return &protocol.Response{Error: fmt.Sprintf("unknown preset %q", request.Preset)}
		}

		draft = preset.Draft(request.Message)
	} else {
		draft = alarm.Draft{
			Message: request.Message,
			Color:   request.Color,
			Icon:    request.Icon,
			Name:    request.Name,
		}
	}

	draft.BackgroundImage = request.BackgroundImage

	event := alarm.New(draft, a.origin, request.Admin)

	sent, failed, err := a.core.Broadcast(ctx, event)
	if err != nil {
		return &protocol.Response{Error: err.Error()}
	}

	if a.audit != nil {
		if auditErr := a.audit.RecordBroadcast(ctx, event, sent, len(failed)); auditErr != nil {
			logger.ErrorKV(ctx, "Failed to record broadcast", "error", auditErr)
		}
	}

	return &protocol.Response{OK: true, Sent: sent, Failed: len(failed)}
}

func (a *Admin) handleStatus() *protocol.Response {
	roster := a.core.Roster()
	clients := make([]protocol.ClientInfo, 0, len(roster))

	for _, session := range roster {
		clients = append(clients, protocol.ClientInfo{
			ID:            session.ID(),
			Address:       session.PeerAddress(),
			LastHeartbeat: session.LastHeartbeat().Format(time.RFC3339),
		})
	}

	return &protocol.Response{OK: true, Clients: clients}
}

func (a *Admin) handleChangePassword(ctx context.Context, request *protocol.Request) *protocol.Response {
	if request.NewPassword == "" {
		return &protocol.Response{Error: "new password must not be empty"}
	}

	if err := a.store.ChangePassword(request.Password, request.NewPassword); err != nil {
		return &protocol.Response{Error: err.Error()}
	}

	a.recordSecurityEvent(ctx, history.EventPasswordChange,
		fmt.Sprintf("password changed by admin %q", request.Admin))
	logger.InfoKV(ctx, "Admin password changed", "admin", request.Admin)

	return &protocol.Response{OK: true}
}

func (a *Admin) recordSecurityEvent(ctx context.Context, kind, detail string) {
	if a.audit == nil {
		return
	}

	if err := a.audit.RecordSecurityEvent(ctx, kind, detail); err != nil {
		logger.ErrorKV(ctx, "Failed to record security event", "kind", kind, "error", err)
	}
}
