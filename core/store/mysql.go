package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLRepository is a shared, cross-process durable Repository, grounded
// on dshills-langgraph-go/graph/store/mysql.go's connection-pool setup and
// upsert-via-ON-DUPLICATE-KEY pattern, adapted to one executions table
// storing JSON-serialized ExecutionState.
type MySQLRepository struct {
	db *sql.DB
}

// NewMySQLRepository opens a connection pool against dsn and ensures the
// executions table exists.
func NewMySQLRepository(dsn string) (*MySQLRepository, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &MySQLRepository{db: db}
	if err := r.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *MySQLRepository) createTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS executions (
			execution_id VARCHAR(64) PRIMARY KEY,
			diagram_id   VARCHAR(255) NOT NULL,
			status       VARCHAR(32) NOT NULL,
			started_at   DATETIME NOT NULL,
			payload      LONGTEXT NOT NULL,
			updated_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			INDEX idx_executions_diagram (diagram_id),
			INDEX idx_executions_status (status)
		) ENGINE=InnoDB
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Close releases the connection pool.
func (r *MySQLRepository) Close() error { return r.db.Close() }

// Upsert atomically inserts or updates executionID's record.
func (r *MySQLRepository) Upsert(ctx context.Context, state *core.ExecutionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal execution state: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (execution_id, diagram_id, status, started_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			diagram_id = VALUES(diagram_id),
			status     = VALUES(status),
			payload    = VALUES(payload)
	`, state.ID, state.DiagramID, string(state.Status), state.StartedAt, payload)
	return err
}

// Get returns the stored ExecutionState for executionID, or ErrNotFound.
func (r *MySQLRepository) Get(ctx context.Context, executionID string) (*core.ExecutionState, error) {
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
func (r *MySQLRepository) List(ctx context.Context, filter ListFilter) ([]*core.ExecutionState, error) {
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
		query += ` LIMIT 18446744073709551615`
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
