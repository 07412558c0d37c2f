package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRunStore appends to and reads the sync_runs history table.
type PostgresRunStore struct {
	db *sql.DB
}

func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

func (s *PostgresRunStore) Append(ctx context.Context, run *RunRecord) error {
	if run == nil {
		return fmt.Errorf("run record is required")
	}
	query := `
		INSERT INTO sync_runs (run_id, started_at, finished_at, result, summary, tables)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			result = EXCLUDED.result,
			summary = EXCLUDED.summary,
			tables = EXCLUDED.tables
	`
	tables := run.Tables
	if tables == "" {
		tables = "{}"
	}
	if _, err := s.db.ExecContext(ctx, query,
		run.RunID,
		run.StartedAt,
		run.FinishedAt,
		run.Result,
		run.Summary,
		tables,
	); err != nil {
		return fmt.Errorf("append sync run: %w", err)
	}
	return nil
}

func (s *PostgresRunStore) ListRecent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, result, summary, tables
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			run    RunRecord
			tables sql.NullString
		)
		if err := rows.Scan(&run.RunID, &run.StartedAt, &run.FinishedAt, &run.Result, &run.Summary, &tables); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		run.Tables = tables.String
		out = append(out, run)
	}
	return out, rows.Err()
}
