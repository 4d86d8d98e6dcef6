package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveReport stores an automation report body and returns its row ID.
func (s *SQLiteStore) SaveReport(ctx context.Context, generatedAt time.Time, body []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_reports (generated_at, body) VALUES (?, ?)
	`, generatedAt.UTC(), string(body))
	if err != nil {
		return 0, fmt.Errorf("failed to save report: %w", err)
	}
	return res.LastInsertId()
}

// LatestReport returns the most recently generated report.
func (s *SQLiteStore) LatestReport(ctx context.Context) (Report, error) {
	var r Report
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, generated_at, body FROM automation_reports
		ORDER BY generated_at DESC, id DESC
		LIMIT 1
	`).Scan(&r.ID, &r.GeneratedAt, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, fmt.Errorf("report: %w", ErrNotFound)
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to query report: %w", err)
	}
	r.Body = []byte(body)
	return r, nil
}
