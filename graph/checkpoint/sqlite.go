package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/graphkit/graph"
	_ "modernc.org/sqlite"
)

// SQLCheckpointer persists checkpoints in a single-file SQLite database
// using the pure-Go modernc.org/sqlite driver — no cgo, zero setup
// beyond a file path. It's an optional fifth variant beyond the four
// §4.5 requires, for callers who want queryable, durable checkpoint
// history without standing up a server.
type SQLCheckpointer struct {
	db *sql.DB
}

func NewSQLCheckpointer(path string) (*SQLCheckpointer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite checkpointer: %w", err)
	}
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	execution_id TEXT NOT NULL,
	label        TEXT NOT NULL,
	timestamp    TEXT NOT NULL,
	state        BLOB NOT NULL,
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	UNIQUE(execution_id, label)
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite checkpointer: %w", err)
	}

	return &SQLCheckpointer{db: db}, nil
}

func (s *SQLCheckpointer) Close() error {
	return s.db.Close()
}

func (s *SQLCheckpointer) Save(ctx context.Context, executionID string, state graph.State, label string) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints(execution_id, label, timestamp, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(execution_id, label) DO UPDATE SET timestamp = excluded.timestamp, state = excluded.state
	`, executionID, label, time.Now().UTC().Format(time.RFC3339Nano), raw)
	return err
}

func (s *SQLCheckpointer) LoadByLabel(ctx context.Context, executionID, label string) (graph.State, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM checkpoints WHERE execution_id = ? AND label = ?
	`, executionID, label).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var state graph.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (s *SQLCheckpointer) Load(ctx context.Context, executionID string) (graph.State, bool, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM checkpoints WHERE execution_id = ? ORDER BY seq DESC LIMIT 1
	`, executionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var state graph.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, false, err
	}
	return state, true, nil
}

func (s *SQLCheckpointer) List(ctx context.Context, executionID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT label FROM checkpoints WHERE execution_id = ? ORDER BY seq ASC
	`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

func (s *SQLCheckpointer) Delete(ctx context.Context, executionID string, label string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE execution_id = ? AND label = ?`, executionID, label)
	return err
}
