package approval

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const approvalSchema = `
CREATE TABLE IF NOT EXISTS approvals (
	id           TEXT PRIMARY KEY,
	agent        TEXT NOT NULL,
	action       TEXT NOT NULL,
	context_hash TEXT NOT NULL,
	reason       TEXT NOT NULL,
	comment      TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL,
	signature    BLOB,
	version      INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status);
CREATE INDEX IF NOT EXISTS idx_approvals_agent ON approvals(agent, action);
`

// SQLiteStore persists approval requests in SQLite. The version column backs
// the CAS guard: transitions update the row only while the version matches.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed initializes) the approval database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval db %q: %w", path, err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(approvalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create approval schema: %w", err)
	}

	logger.Info("approval store initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger.With("component", "approval.store.sqlite")}, nil
}

// Create stores a new request.
func (s *SQLiteStore) Create(ctx context.Context, req *Request) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO approvals (id, agent, action, context_hash, reason, comment, status, created_at, expires_at, signature, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Agent, req.Action, req.ContextHash, req.Reason, req.Comment,
		string(req.Status), req.CreatedAt.Unix(), req.ExpiresAt.Unix(), req.Signature, req.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to insert approval %s: %w", req.ID, err)
	}
	return nil
}

// Get returns the request with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, agent, action, context_hash, reason, comment, status, created_at, expires_at, signature, version
		FROM approvals WHERE id = ?`, id)

	var req Request
	var status string
	var createdAt, expiresAt int64
	err := row.Scan(&req.ID, &req.Agent, &req.Action, &req.ContextHash, &req.Reason,
		&req.Comment, &status, &createdAt, &expiresAt, &req.Signature, &req.Version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load approval %s: %w", id, err)
	}

	req.Status = Status(status)
	req.CreatedAt = time.Unix(createdAt, 0).UTC()
	req.ExpiresAt = time.Unix(expiresAt, 0).UTC()
	return &req, nil
}

// ListPending returns all pending requests.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]*Request, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, agent, action, context_hash, reason, comment, status, created_at, expires_at, signature, version
		FROM approvals WHERE status = ?`, string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		var req Request
		var status string
		var createdAt, expiresAt int64
		if err := rows.Scan(&req.ID, &req.Agent, &req.Action, &req.ContextHash, &req.Reason,
			&req.Comment, &status, &createdAt, &expiresAt, &req.Signature, &req.Version); err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		req.Status = Status(status)
		req.CreatedAt = time.Unix(createdAt, 0).UTC()
		req.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		out = append(out, &req)
	}
	return out, rows.Err()
}

// Transition applies a CAS-guarded state change.
func (s *SQLiteStore) Transition(ctx context.Context, id string, expectVersion int64, status Status, signature []byte, comment string) error {
	var res sql.Result
	var err error
	if signature != nil {
		res, err = s.db.ExecContext(ctx, `
			UPDATE approvals SET status = ?, signature = ?, comment = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			string(status), signature, comment, id, expectVersion)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE approvals SET status = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			string(status), id, expectVersion)
	}
	if err != nil {
		return fmt.Errorf("failed to transition approval %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or another transition won the race.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
