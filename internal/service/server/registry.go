package server

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// Session is one live server-side representation of a connected client
// socket. It is owned exclusively by the Registry; the dispatcher and the
// heartbeat loop only reach sessions through registry snapshots.
type Session struct {
	// id is a process-local monotonic identifier.
	id uint64
	// conn is the client socket.
	conn net.Conn
	// peerAddress is the remote endpoint, advisory, for display and logging.
	peerAddress string
	// writeTimeout bounds every socket write so in-flight broadcasts fail
	// fast during shutdown instead of hanging.
	writeTimeout time.Duration

	// writeMu serializes heartbeats and broadcasts. A session is a
	// single-writer resource: interleaved writes would corrupt frames.
	writeMu sync.Mutex

	// beatMu guards lastHeartbeat.
	beatMu sync.Mutex
	// lastHeartbeat is the time of the last successful liveness probe.
	lastHeartbeat time.Time

	// closeOnce makes Close idempotent.
	closeOnce sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// PeerAddress returns the remote endpoint string.
func (s *Session) PeerAddress() string {
	return s.peerAddress
}

// LastHeartbeat returns the time of the last successful liveness probe.
func (s *Session) LastHeartbeat() time.Time {
	s.beatMu.Lock()
	defer s.beatMu.Unlock()

	return s.lastHeartbeat
}

// touchHeartbeat records a successful liveness probe.
func (s *Session) touchHeartbeat() {
	s.beatMu.Lock()
	defer s.beatMu.Unlock()

	s.lastHeartbeat = time.Now()
}

// Write sends one payload to the client under the session write lock with a
// bounded deadline. A failed write on a stream socket means the peer is
// gone; callers unregister the session instead of retrying.
func (s *Session) Write(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("write to %s: %w", s.peerAddress, err)
	}

	return nil
}

// close shuts the socket down once.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		_ = s.conn.Close()
	})
}

// Registry is the thread-safe collection of active sessions. It is the only
// state shared across the server's concurrency units; all access goes
// through its lock-protected operations.
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	sessions map[uint64]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint64]*Session),
	}
}

// Register wraps the connection in a session, assigns the next id and stores
// it under lock.
func (r *Registry) Register(conn net.Conn, writeTimeout time.Duration) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++

	session := &Session{
		id:            r.nextID,
		conn:          conn,
		peerAddress:   conn.RemoteAddr().String(),
		writeTimeout:  writeTimeout,
		lastHeartbeat: time.Now(),
	}

	r.sessions[session.id] = session

	return session
}

// Unregister removes and closes the session. It is idempotent and safe to
// call concurrently with dispatch; a second call is a no-op.
func (r *Registry) Unregister(id uint64) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}

	session.close()

	return true
}

// Snapshot returns a point-in-time copy of the session set ordered by id.
// Iterating the copy keeps network I/O out of the registry lock, so one slow
// client can never head-of-line block the whole registry.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()

	snapshot := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		snapshot = append(snapshot, session)
	}

	r.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].id < snapshot[j].id
	})

	return snapshot
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// CloseAll unregisters and closes every session.
func (r *Registry) CloseAll() {
	for _, session := range r.Snapshot() {
		r.Unregister(session.id)
	}
}
