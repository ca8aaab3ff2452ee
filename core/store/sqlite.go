package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	_ "modernc.org/sqlite"
)

// SQLiteRepository is a single-file durable Repository, grounded on
// dshills-langgraph-go/graph/store/sqlite.go's WAL-mode connection setup
// and single-writer pooling, adapted here to one executions table storing
// a JSON-serialized ExecutionState rather than a generic step/checkpoint
// history.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if absent) a SQLite database at path
// and ensures the executions table exists.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	r := &SQLiteRepository{db: db}
	if err := r.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *SQLiteRepository) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS executions (
			execution_id TEXT PRIMARY KEY,
			diagram_id   TEXT NOT NULL,
			status       TEXT NOT NULL,
			started_at   TIMESTAMP NOT NULL,
			payload      TEXT NOT NULL,
			updated_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_executions_diagram ON executions(diagram_id);
		CREATE INDEX IF NOT EXISTS idx_executions_status ON executions(status);
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Close releases the underlying connection.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

// Upsert atomically inserts or replaces executionID's record.
func (r *SQLiteRepository) Upsert(ctx context.Context, state *core.ExecutionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal execution state: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, diagram_id, status, started_at, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(execution_id) DO UPDATE SET
			diagram_id = excluded.diagram_id,
			status     = excluded.status,
			payload    = excluded.payload,
			updated_at = CURRENT_TIMESTAMP
	`, state.ID, state.DiagramID, string(state.Status), state.StartedAt, payload)
	return err
}

// Get returns the stored ExecutionState for executionID, or ErrNotFound.
func (r *SQLiteRepository) Get(ctx context.Context, executionID string) (*core.ExecutionState, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM executions WHERE execution_id = ?`, executionID)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var state core.ExecutionState
	if err := json.Unmarshal([]byte(payload), &state); err != nil {
		return nil, fmt.Errorf("unmarshal execution state: %w", err)
	}
	return &state, nil
}

// List applies filter.DiagramID/Status then limit/offset, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]*core.ExecutionState, error) {
	query := `SELECT payload FROM executions WHERE 1=1`
	var args []any
	if filter.DiagramID != "" {
		query += ` AND diagram_id = ?`
		args = append(args, filter.DiagramID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.ExecutionState
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var state core.ExecutionState
		if err := json.Unmarshal([]byte(payload), &state); err != nil {
			return nil, fmt.Errorf("unmarshal execution state: %w", err)
		}
		out = append(out, &state)
	}
	return out, rows.Err()
}
