package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteSnapshotStore persists run snapshots in a SQLite database.
//
// It expects an *sql.DB opened with a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing the
// driver:
//
//	import _ "modernc.org/sqlite"
type SQLiteSnapshotStore struct {
	db *sql.DB
}

var _ SnapshotStore = (*SQLiteSnapshotStore)(nil)

// SnapshotRecord is one row of the snapshot table, used for listings.
type SnapshotRecord struct {
	WorkflowName string
	RunID        string
	UpdatedAt    time.Time
	State        *RunState
}

// NewSQLiteSnapshotStore initializes the snapshot schema in the given
// database and returns the store.
func NewSQLiteSnapshotStore(db *sql.DB) (*SQLiteSnapshotStore, error) {
	s := &SQLiteSnapshotStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize snapshot schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteSnapshotStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_snapshots (
			workflow_name TEXT NOT NULL,
			run_id TEXT NOT NULL,
			state BLOB NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (workflow_name, run_id)
		);`,
	)
	return err
}

func (s *SQLiteSnapshotStore) SaveSnapshot(ctx context.Context, workflowName, runID string, state *RunState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_snapshots (workflow_name, run_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (workflow_name, run_id)
		DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		workflowName,
		runID,
		data,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteSnapshotStore) LoadSnapshot(ctx context.Context, workflowName, runID string) (*RunState, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT state FROM workflow_snapshots
		WHERE workflow_name = ? AND run_id = ?`,
		workflowName,
		runID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &state, nil
}

// ListSnapshots returns all stored snapshots, optionally filtered by
// workflow name, most recently updated first.
func (s *SQLiteSnapshotStore) ListSnapshots(ctx context.Context, workflowName string) ([]SnapshotRecord, error) {
	query := `
		SELECT workflow_name, run_id, state, updated_at
		FROM workflow_snapshots`
	args := []any{}
	if workflowName != "" {
		query += ` WHERE workflow_name = ?`
		args = append(args, workflowName)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		var (
			record    SnapshotRecord
			data      []byte
			updatedAt string
		)
		if err := rows.Scan(&record.WorkflowName, &record.RunID, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
			record.UpdatedAt = ts
		}
		var state RunState
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot for run %q: %w", record.RunID, err)
		}
		record.State = &state
		records = append(records, record)
	}
	return records, rows.Err()
}

// DeleteSnapshot removes a stored snapshot. Deleting a missing snapshot is
// not an error.
func (s *SQLiteSnapshotStore) DeleteSnapshot(ctx context.Context, workflowName, runID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM workflow_snapshots
		WHERE workflow_name = ? AND run_id = ?`,
		workflowName,
		runID,
	)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
