package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/graphkit/graph"
	_ "github.com/go-sql-driver/mysql"
)

// MySQLCheckpointer persists checkpoints in a MySQL/MariaDB table, the
// networked counterpart to SQLCheckpointer for workers that need a
// shared, multi-process checkpoint store rather than a local file.
//
// DSN format: [username[:password]@][tcp(address)]/dbname[?params].
type MySQLCheckpointer struct {
	db *sql.DB
}

func NewMySQLCheckpointer(dsn string) (*MySQLCheckpointer, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql checkpointer: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql checkpointer: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq          BIGINT AUTO_INCREMENT PRIMARY KEY,
	execution_id VARCHAR(255) NOT NULL,
	label        VARCHAR(255) NOT NULL,
	timestamp    VARCHAR(64) NOT NULL,
	state        JSON NOT NULL,
	UNIQUE KEY unique_execution_label (execution_id, label),
	INDEX idx_execution (execution_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate mysql checkpointer: %w", err)
	}

	return &MySQLCheckpointer{db: db}, nil
}

func (m *MySQLCheckpointer) Close() error {
	return m.db.Close()
}

func (m *MySQLCheckpointer) Save(ctx context.Context, executionID string, state graph.State, label string) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO checkpoints(execution_id, label, timestamp, state)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE timestamp = VALUES(timestamp), state = VALUES(state)
	`, executionID, label, time.Now().UTC().Format(time.RFC3339Nano), raw)
	return err
}

func (m *MySQLCheckpointer) LoadByLabel(ctx context.Context, executionID, label string) (graph.State, bool, error) {
	var raw []byte
	err := m.db.QueryRowContext(ctx, `
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

func (m *MySQLCheckpointer) Load(ctx context.Context, executionID string) (graph.State, bool, error) {
	var raw []byte
	err := m.db.QueryRowContext(ctx, `
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

func (m *MySQLCheckpointer) List(ctx context.Context, executionID string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
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

func (m *MySQLCheckpointer) Delete(ctx context.Context, executionID string, label string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE execution_id = ? AND label = ?`, executionID, label)
	return err
}
