package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/oshokin/alarm-broadcast/internal/domain/alarm"
)

// migrations is an ordered list of SQL statements applied on open.
// Each entry is idempotent (IF NOT EXISTS) so re-running is safe.
//
//nolint:gochecknoglobals // Static migration list.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS broadcasts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT NOT NULL,
		name       TEXT NOT NULL,
		message    TEXT NOT NULL,
		admin      TEXT NOT NULL,
		sent       INTEGER NOT NULL,
		failed     INTEGER NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS security_events (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT NOT NULL,
		detail     TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
}

// Security event kinds recorded by the server and the passwd tool.
const (
	// EventAuthFailure marks a rejected admin authentication attempt.
	EventAuthFailure = "auth_failure"
	// EventPasswordChange marks a successful credential replacement.
	EventPasswordChange = "password_change"
	// EventPasswordReset marks a credential reset from the passwd tool.
	EventPasswordReset = "password_reset"
)

// BroadcastRecord is one persisted fan-out result.
type BroadcastRecord struct {
	ID        int64
	Kind      string
	Name      string
	Message   string
	Admin     string
	Sent      int
	Failed    int
	CreatedAt time.Time
}

// SecurityEvent is one persisted security-relevant occurrence.
type SecurityEvent struct {
	ID        int64
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Store is the SQLite-backed audit log of broadcasts and security events.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the audit database at path and runs migrations.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time.

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()

		return nil, err
	}

	return s, nil
}

func (s *Store) migrate() error {
	for _, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordBroadcast appends one fan-out result to the audit log.
func (s *Store) RecordBroadcast(ctx context.Context, event *alarm.Event, sent, failed int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcasts (kind, name, message, admin, sent, failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Kind, event.Name, event.Message, event.Admin,
		sent, failed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record broadcast: %w", err)
	}

	return nil
}

// RecordSecurityEvent appends one security event to the audit log.
func (s *Store) RecordSecurityEvent(ctx context.Context, kind, detail string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO security_events (kind, detail, created_at) VALUES (?, ?, ?)`,
		kind, detail, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record security event: %w", err)
	}

	return nil
}

// RecentBroadcasts returns up to limit broadcasts, newest first.
func (s *Store) RecentBroadcasts(ctx context.Context, limit int) ([]BroadcastRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, name, message, admin, sent, failed, created_at
		 FROM broadcasts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query broadcasts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []BroadcastRecord

	for rows.Next() {
		var (
			record    BroadcastRecord
			createdAt string
		)

		if err := rows.Scan(&record.ID, &record.Kind, &record.Name, &record.Message,
			&record.Admin, &record.Sent, &record.Failed, &createdAt); err != nil {
			return nil, fmt.Errorf("scan broadcast: %w", err)
		}

		record.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate broadcasts: %w", err)
	}

	return records, nil
}

// RecentSecurityEvents returns up to limit security events, newest first.
func (s *Store) RecentSecurityEvents(ctx context.Context, limit int) ([]SecurityEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, detail, created_at
		 FROM security_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query security events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var events []SecurityEvent

	for rows.Next() {
		var (
			event     SecurityEvent
			createdAt string
		)

		if err := rows.Scan(&event.ID, &event.Kind, &event.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan security event: %w", err)
		}

		event.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security events: %w", err)
	}

	return events, nil
}
