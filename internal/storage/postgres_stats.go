package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"scoresync/internal/domain"
)

// PostgresStatsStore persists derived statistics with delete-then-insert
// semantics. Statistics are fully recomputed per run, never patched.
type PostgresStatsStore struct {
	db *sql.DB
}

func NewPostgresStatsStore(db *sql.DB) *PostgresStatsStore {
	return &PostgresStatsStore{db: db}
}

func (s *PostgresStatsStore) ReplaceGroup(ctx context.Context, dimensions []string, stats []domain.GroupStatistic) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace group statistics: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_statistics WHERE dimension = ANY($1)`,
		pq.Array(dimensions),
	); err != nil {
		return fmt.Errorf("delete group statistics: %w", err)
	}

	insert := `
		INSERT INTO group_statistics (institution_id, cycle, period, dimension, mean, stddev, p25, p50, p75, observation_count, histogram)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for i := range stats {
		st := &stats[i]
		if _, err := tx.ExecContext(ctx, insert,
			st.InstitutionID.String(),
			st.Cycle,
			st.Period,
			st.Dimension,
			st.Mean,
			st.StdDev,
			st.P25,
			st.P50,
			st.P75,
			st.Count,
			pq.Array(st.Histogram),
		); err != nil {
			return fmt.Errorf("insert group statistic: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace group statistics: %w", err)
	}
	return nil
}

func (s *PostgresStatsStore) ReplaceBenchmark(ctx context.Context, dimensions []string, stats []domain.BenchmarkStatistic) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace benchmark statistics: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM benchmark_statistics WHERE dimension = ANY($1)`,
		pq.Array(dimensions),
	); err != nil {
		return fmt.Errorf("delete benchmark statistics: %w", err)
	}

	insert := `
		INSERT INTO benchmark_statistics (cycle, period, dimension, mean, stddev, p25, p50, p75, observation_count, histogram)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	for i := range stats {
		st := &stats[i]
		if _, err := tx.ExecContext(ctx, insert,
			st.Cycle,
			st.Period,
			st.Dimension,
			st.Mean,
			st.StdDev,
			st.P25,
			st.P50,
			st.P75,
			st.Count,
			pq.Array(st.Histogram),
		); err != nil {
			return fmt.Errorf("insert benchmark statistic: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace benchmark statistics: %w", err)
	}
	return nil
}

func (s *PostgresStatsStore) CountGroup(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "group_statistics")
}

func (s *PostgresStatsStore) CountBenchmark(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "benchmark_statistics")
}
