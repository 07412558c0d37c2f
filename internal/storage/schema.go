package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Migrate creates the sync-managed tables when absent. The pipeline owns
// these tables; dashboard-facing readers only consume them.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS institutions (
			id UUID PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			calendar_year BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS persons (
			id UUID PRIMARY KEY,
			external_id TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			institution_id UUID REFERENCES institutions(id),
			group_name TEXT NOT NULL DEFAULT '',
			cohort TEXT NOT NULL DEFAULT '',
			current_period TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS person_aliases (
			external_id TEXT PRIMARY KEY,
			person_id UUID NOT NULL REFERENCES persons(id)
		)`,
		`CREATE TABLE IF NOT EXISTS advisors (
			external_id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			institution_id UUID REFERENCES institutions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS staff_members (
			external_id TEXT PRIMARY KEY,
			email TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			institution_id UUID REFERENCES institutions(id)
		)`,
		`CREATE TABLE IF NOT EXISTS score_records (
			person_id UUID NOT NULL REFERENCES persons(id),
			cycle INT NOT NULL,
			period TEXT NOT NULL DEFAULT '',
			self_awareness DOUBLE PRECISION,
			career_exploration DOUBLE PRECISION,
			planning DOUBLE PRECISION,
			skills DOUBLE PRECISION,
			confidence DOUBLE PRECISION,
			overall DOUBLE PRECISION,
			completed_at TIMESTAMPTZ,
			PRIMARY KEY (person_id, cycle, period)
		)`,
		`CREATE TABLE IF NOT EXISTS response_records (
			person_id UUID NOT NULL REFERENCES persons(id),
			cycle INT NOT NULL,
			question_id TEXT NOT NULL,
			value INT NOT NULL,
			PRIMARY KEY (person_id, cycle, question_id)
		)`,
		`CREATE TABLE IF NOT EXISTS group_statistics (
			institution_id UUID NOT NULL,
			cycle INT NOT NULL,
			period TEXT NOT NULL,
			dimension TEXT NOT NULL,
			mean DOUBLE PRECISION NOT NULL,
			stddev DOUBLE PRECISION NOT NULL,
			p25 DOUBLE PRECISION NOT NULL,
			p50 DOUBLE PRECISION NOT NULL,
			p75 DOUBLE PRECISION NOT NULL,
			observation_count INT NOT NULL,
			histogram INTEGER[] NOT NULL,
			PRIMARY KEY (institution_id, cycle, period, dimension)
		)`,
		`CREATE TABLE IF NOT EXISTS benchmark_statistics (
			cycle INT NOT NULL,
			period TEXT NOT NULL,
			dimension TEXT NOT NULL,
			mean DOUBLE PRECISION NOT NULL,
			stddev DOUBLE PRECISION NOT NULL,
			p25 DOUBLE PRECISION NOT NULL,
			p50 DOUBLE PRECISION NOT NULL,
			p75 DOUBLE PRECISION NOT NULL,
			observation_count INT NOT NULL,
			histogram INTEGER[] NOT NULL,
			PRIMARY KEY (cycle, period, dimension)
		)`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			run_id TEXT PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			result TEXT NOT NULL,
			summary TEXT NOT NULL,
			tables JSONB NOT NULL DEFAULT '{}'
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
