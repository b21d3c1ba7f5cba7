package archive

// EventMirror copies drift events into PostgreSQL so a fleet of monitors can
// be queried centrally. The driver is registered by the caller; cmd/monitor
// blank-imports lib/pq when a DSN is configured.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const eventTable = "drift_events"

// MirroredEvent is one row of the central event table.
type MirroredEvent struct {
	EventID   string          `json:"event_id"`
	DriftType string          `json:"drift_type"`
	Severity  string          `json:"severity"`
	Timestamp float64         `json:"timestamp"`
	Details   json.RawMessage `json:"details"`
}

type EventMirror struct {
	db *sql.DB
}

// NewEventMirror wraps an open Postgres handle.
func NewEventMirror(db *sql.DB) (*EventMirror, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: nil db", ErrArchive)
	}
	return &EventMirror{db: db}, nil
}

// OpenEventMirror dials Postgres and ensures the schema. The lib/pq driver
// must be registered.
func OpenEventMirror(ctx context.Context, dsn string) (*EventMirror, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", ErrArchive, err)
	}
	db.SetConnMaxLifetime(time.Hour)
	m := &EventMirror{db: db}
	if err := m.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// EnsureSchema creates the event table if it does not exist. Idempotent.
func (m *EventMirror) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  event_id   TEXT PRIMARY KEY,
  drift_type TEXT NOT NULL,
  severity   TEXT NOT NULL,
  ts         DOUBLE PRECISION NOT NULL,
  details    TEXT NOT NULL
);`, eventTable)
	if _, err := m.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("%w: ensure schema: %v", ErrArchive, err)
	}
	return nil
}

// Record upserts one event. Replays of the same event id are harmless.
func (m *EventMirror) Record(ctx context.Context, ev MirroredEvent) error {
	details := ev.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	q := fmt.Sprintf(`
INSERT INTO %s (event_id, drift_type, severity, ts, details)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (event_id) DO NOTHING;`, eventTable)
	if _, err := m.db.ExecContext(ctx, q, ev.EventID, ev.DriftType, ev.Severity, ev.Timestamp, string(details)); err != nil {
		return fmt.Errorf("%w: record event: %v", ErrArchive, err)
	}
	return nil
}

// Recent returns the newest mirrored events, optionally filtered by
// severity.
func (m *EventMirror) Recent(ctx context.Context, severity string, limit int) ([]MirroredEvent, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 1000 {
		limit = 1000
	}

	q := fmt.Sprintf(`SELECT event_id, drift_type, severity, ts, details FROM %s`, eventTable)
	args := []any{}
	if severity != "" {
		q += ` WHERE severity = $1`
		args = append(args, severity)
	}
	q += fmt.Sprintf(` ORDER BY ts DESC LIMIT %d`, limit)

	rows, err := m.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query events: %v", ErrArchive, err)
	}
	defer rows.Close()

	var out []MirroredEvent
	for rows.Next() {
		var ev MirroredEvent
		var details string
		if err := rows.Scan(&ev.EventID, &ev.DriftType, &ev.Severity, &ev.Timestamp, &details); err != nil {
			return nil, fmt.Errorf("%w: scan event: %v", ErrArchive, err)
		}
		ev.Details = json.RawMessage(details)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", ErrArchive, err)
	}
	return out, nil
}

// CountBySeverity returns event counts keyed by severity.
func (m *EventMirror) CountBySeverity(ctx context.Context) (map[string]int, error) {
	q := fmt.Sprintf(`SELECT severity, COUNT(*) FROM %s GROUP BY severity`, eventTable)
	rows, err := m.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: count events: %v", ErrArchive, err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("%w: scan count: %v", ErrArchive, err)
		}
		out[sev] = n
	}
	return out, rows.Err()
}

// Close closes the database.
func (m *EventMirror) Close() error {
	return m.db.Close()
}
