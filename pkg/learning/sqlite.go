package learning

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

const exampleSchema = `
CREATE TABLE IF NOT EXISTS labeled_examples (
	source      TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	agent       TEXT NOT NULL,
	action_type TEXT NOT NULL DEFAULT '',
	features    TEXT NOT NULL DEFAULT '{}',
	label       INTEGER NOT NULL,
	confidence  INTEGER NOT NULL,
	timestamp   INTEGER NOT NULL,
	PRIMARY KEY (source, source_id)
);
CREATE INDEX IF NOT EXISTS idx_examples_agent ON labeled_examples(agent, timestamp);

CREATE TABLE IF NOT EXISTS evaluations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	evaluator  TEXT NOT NULL,
	agent      TEXT NOT NULL,
	agreed     INTEGER NOT NULL,
	confidence REAL NOT NULL,
	timestamp  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evaluations_agent ON evaluations(agent, timestamp);
`

// SQLiteStore persists labeled examples in SQLite. The primary key enforces
// the dedupe invariant; supersede checks run inside a transaction.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed initializes) the example database.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open example db %q: %w", path, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(exampleSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create example schema: %w", err)
	}
	logger.Info("example store initialized", "path", path)
	return &SQLiteStore{db: db, logger: logger.With("component", "learning.store.sqlite")}, nil
}

// Add inserts or supersedes an example.
func (s *SQLiteStore) Add(ctx context.Context, e *Example) (bool, error) {
	if err := e.Validate(); err != nil {
		return false, err
	}

	features, err := json.Marshal(e.Features)
	if err != nil {
		return false, fmt.Errorf("failed to encode features: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var oldTS int64
	var oldConf int
	row := tx.QueryRowContext(ctx,
		`SELECT timestamp, confidence FROM labeled_examples WHERE source = ? AND source_id = ?`,
		e.Source, e.SourceID)
	err = row.Scan(&oldTS, &oldConf)
	switch {
	case err == sql.ErrNoRows:
		// New identity, plain insert below.
	case err != nil:
		return false, fmt.Errorf("failed to check existing example: %w", err)
	default:
		old := &Example{Timestamp: time.Unix(oldTS, 0).UTC(), Confidence: oldConf}
		if !e.supersedes(old) {
			return false, nil
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO labeled_examples (source, source_id, agent, action_type, features, label, confidence, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, source_id) DO UPDATE SET
			agent = excluded.agent,
			action_type = excluded.action_type,
			features = excluded.features,
			label = excluded.label,
			confidence = excluded.confidence,
			timestamp = excluded.timestamp`,
		e.Source, e.SourceID, e.Agent, e.ActionType, string(features),
		boolToInt(e.Label), e.Confidence, e.Timestamp.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert example %s: %w", e.Key(), err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit example %s: %w", e.Key(), err)
	}
	return true, nil
}

// Get returns the example with the given identity.
func (s *SQLiteStore) Get(ctx context.Context, source, sourceID string) (*Example, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source, source_id, agent, action_type, features, label, confidence, timestamp
		FROM labeled_examples WHERE source = ? AND source_id = ?`,
		source, sourceID)
	return scanExample(row)
}

// Contains reports whether the identity is present.
func (s *SQLiteStore) Contains(ctx context.Context, source, sourceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM labeled_examples WHERE source = ? AND source_id = ?`,
		source, sourceID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check example: %w", err)
	}
	return true, nil
}

// ListByAgent returns the agent's examples at or after since.
func (s *SQLiteStore) ListByAgent(ctx context.Context, agent string, since time.Time) ([]*Example, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, source_id, agent, action_type, features, label, confidence, timestamp
		FROM labeled_examples
		WHERE agent = ? AND timestamp >= ?
		ORDER BY timestamp ASC, source ASC, source_id ASC`,
		agent, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list examples: %w", err)
	}
	defer rows.Close()

	var out []*Example
	for rows.Next() {
		e, err := scanExample(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns how many examples the agent has.
func (s *SQLiteStore) Count(ctx context.Context, agent string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM labeled_examples WHERE agent = ?`, agent).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count examples: %w", err)
	}
	return count, nil
}

// Agents returns every agent with at least one example.
func (s *SQLiteStore) Agents(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT agent FROM labeled_examples ORDER BY agent ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var agent string
		if err := rows.Scan(&agent); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		out = append(out, agent)
	}
	return out, rows.Err()
}

// AddEvaluation appends one judged verdict for later weight recomputation.
func (s *SQLiteStore) AddEvaluation(ctx context.Context, e *Evaluation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (evaluator, agent, agreed, confidence, timestamp)
		VALUES (?, ?, ?, ?, ?)`,
		e.Evaluator, e.Agent, boolToInt(e.Agreed), e.Confidence, e.Timestamp.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return nil
}

// ListEvaluations returns the agent's evaluations at or after since.
func (s *SQLiteStore) ListEvaluations(ctx context.Context, agent string, since time.Time) ([]*Evaluation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT evaluator, agent, agreed, confidence, timestamp
		FROM evaluations
		WHERE agent = ? AND timestamp >= ?
		ORDER BY timestamp ASC, id ASC`,
		agent, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*Evaluation
	for rows.Next() {
		var e Evaluation
		var agreed int
		var ts int64
		if err := rows.Scan(&e.Evaluator, &e.Agent, &agreed, &e.Confidence, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		e.Agreed = agreed != 0
		e.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner abstracts sql.Row and sql.Rows for scanExample.
type scanner interface {
	Scan(dest ...any) error
}

func scanExample(row scanner) (*Example, error) {
	var e Example
	var features string
	var label int
	var ts int64
	err := row.Scan(&e.Source, &e.SourceID, &e.Agent, &e.ActionType, &features, &label, &e.Confidence, &ts)
	if err == sql.ErrNoRows {
		return nil, ErrExampleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan example: %w", err)
	}
	if err := json.Unmarshal([]byte(features), &e.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features for %s: %w", e.Key(), err)
	}
	e.Label = label != 0
	e.Timestamp = time.Unix(ts, 0).UTC()
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
