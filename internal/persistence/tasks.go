package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/viralshorts/automation/internal/scheduler"
)

// Put saves or replaces the snapshot stored under key, along with its
// dependency edges. Uses ON CONFLICT to make saves idempotent.
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	var snap scheduler.Snapshot
	if err := json.Unmarshal(value, &snap); err != nil {
		return fmt.Errorf("invalid snapshot for %s: %w", key, err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, kind, priority, status, retry_count, scheduled_at, snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			priority = excluded.priority,
			status = excluded.status,
			retry_count = excluded.retry_count,
			scheduled_at = excluded.scheduled_at,
			snapshot = excluded.snapshot,
			updated_at = CURRENT_TIMESTAMP
	`, key, snap.Kind, snap.Priority, snap.Status, snap.RetryCount, snap.ScheduledAt.UTC(), string(value))
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ?`, key); err != nil {
		return fmt.Errorf("failed to delete old dependencies: %w", err)
	}
	for _, depID := range snap.DependsOn {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_dependencies (task_id, depends_on_id)
			VALUES (?, ?)
		`, key, depID)
		if err != nil {
			return fmt.Errorf("failed to insert dependency %s -> %s: %w", key, depID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Get returns the snapshot stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM tasks WHERE id = ?`, key).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return []byte(snapshot), nil
}

// List returns every stored snapshot in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([][]byte, error) {
	return s.query(ctx, `SELECT snapshot FROM tasks ORDER BY created_at, rowid`)
}

// ListByStatus returns the snapshots whose status matches, e.g. "pending".
func (s *SQLiteStore) ListByStatus(ctx context.Context, status string) ([][]byte, error) {
	return s.query(ctx, `SELECT snapshot FROM tasks WHERE status = ? ORDER BY created_at, rowid`, status)
}

// Dependents returns the IDs of stored tasks that depend on taskID.
func (s *SQLiteStore) Dependents(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id FROM task_dependencies WHERE depends_on_id = ? ORDER BY task_id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dependents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dependent: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes the snapshot stored under key. Deleting a missing key is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, key); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// CountByStatus returns the number of stored tasks per status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var snapshot string
		if err := rows.Scan(&snapshot); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		out = append(out, []byte(snapshot))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return out, nil
}
