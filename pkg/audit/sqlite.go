package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id           TEXT PRIMARY KEY,
	time         INTEGER NOT NULL,
	category     TEXT NOT NULL,
	kind         TEXT NOT NULL,
	agent        TEXT NOT NULL DEFAULT '',
	action       TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL DEFAULT '',
	detail       TEXT NOT NULL DEFAULT '{}',
	payload_hash TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_category ON audit_events(category, kind);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_events(agent);
CREATE INDEX IF NOT EXISTS idx_audit_time ON audit_events(time);
`

// SQLiteRecorder persists audit events to SQLite. Write failures are logged
// and dropped so auditing never fails the governed operation.
type SQLiteRecorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRecorder opens (and if needed initializes) the audit database.
func NewSQLiteRecorder(path string, logger *slog.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db %q: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit schema: %w", err)
	}
	return &SQLiteRecorder{db: db, logger: logger.With("component", "audit.sqlite")}, nil
}

// Record inserts the event.
func (r *SQLiteRecorder) Record(ctx context.Context, event *Event) {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		detail = []byte("{}")
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, time, category, kind, agent, action, outcome, detail, payload_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.Time.Unix(), string(event.Category), event.Kind,
		event.Agent, event.Action, event.Outcome, string(detail), event.PayloadHash,
	)
	if err != nil {
		r.logger.Error("failed to persist audit event",
			"event_id", event.ID,
			"kind", event.Kind,
			"error", err,
		)
	}
}

// Query returns events in a time range, newest first, up to limit.
func (r *SQLiteRecorder) Query(ctx context.Context, from, to time.Time, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, time, category, kind, agent, action, outcome, detail, payload_hash
		FROM audit_events WHERE time >= ? AND time <= ?
		ORDER BY time DESC LIMIT ?`,
		from.Unix(), to.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var e Event
		var ts int64
		var category, detail string
		if err := rows.Scan(&e.ID, &ts, &category, &e.Kind, &e.Agent, &e.Action, &e.Outcome, &detail, &e.PayloadHash); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Time = time.Unix(ts, 0).UTC()
		e.Category = Category(category)
		if err := json.Unmarshal([]byte(detail), &e.Detail); err != nil {
			e.Detail = nil
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// Close releases the database handle.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
