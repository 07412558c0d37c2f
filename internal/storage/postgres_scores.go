package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scoresync/internal/domain"
	id "scoresync/pkg/domain"
)

// PostgresScoreStore persists score records keyed by (person, cycle, period).
type PostgresScoreStore struct {
	db *sql.DB
}

func NewPostgresScoreStore(db *sql.DB) *PostgresScoreStore {
	return &PostgresScoreStore{db: db}
}

func (s *PostgresScoreStore) Upsert(ctx context.Context, record *domain.ScoreRecord) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("score record is required")
	}
	query := `
		INSERT INTO score_records (person_id, cycle, period, self_awareness, career_exploration, planning, skills, confidence, overall, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (person_id, cycle, period) DO UPDATE SET
			self_awareness = EXCLUDED.self_awareness,
			career_exploration = EXCLUDED.career_exploration,
			planning = EXCLUDED.planning,
			skills = EXCLUDED.skills,
			confidence = EXCLUDED.confidence,
			overall = EXCLUDED.overall,
			completed_at = EXCLUDED.completed_at
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		record.PersonID.String(),
		record.Cycle,
		record.Period,
		record.SelfAwareness,
		record.CareerExploration,
		record.Planning,
		record.Skills,
		record.Confidence,
		record.Overall,
		record.CompletedAt,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert score record: %w", err)
	}
	return inserted, nil
}

func (s *PostgresScoreStore) GetByKey(ctx context.Context, personID id.PersonID, cycle int, period string) (*domain.ScoreRecord, error) {
	query := `
		SELECT person_id, cycle, period, self_awareness, career_exploration, planning, skills, confidence, overall, completed_at
		FROM score_records
		WHERE person_id = $1 AND cycle = $2 AND period = $3
	`
	record, err := scanScore(s.db.QueryRowContext(ctx, query, personID.String(), cycle, period))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get score record: %w", err)
	}
	return record, nil
}

func (s *PostgresScoreStore) ListMissingPeriod(ctx context.Context) ([]domain.ScoreRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT person_id, cycle, period, self_awareness, career_exploration, planning, skills, confidence, overall, completed_at
		FROM score_records
		WHERE period = ''
	`)
	if err != nil {
		return nil, fmt.Errorf("list scores missing period: %w", err)
	}
	defer rows.Close()

	var out []domain.ScoreRecord
	for rows.Next() {
		record, err := scanScore(rows)
		if err != nil {
			return nil, fmt.Errorf("scan score record: %w", err)
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

// SetPeriod moves a record from the empty period onto its computed one.
// Period is part of the key, so a row already existing at the target key
// wins and the unperioded row is dropped.
func (s *PostgresScoreStore) SetPeriod(ctx context.Context, personID id.PersonID, cycle int, period string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set period: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE score_records SET period = $3
		WHERE person_id = $1 AND cycle = $2 AND period = ''
		  AND NOT EXISTS (
			SELECT 1 FROM score_records
			WHERE person_id = $1 AND cycle = $2 AND period = $3
		  )
	`, personID.String(), cycle, period)
	if err != nil {
		return fmt.Errorf("set score period: %w", err)
	}
	moved, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set score period rows affected: %w", err)
	}
	if moved == 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM score_records
			WHERE person_id = $1 AND cycle = $2 AND period = ''
		`, personID.String(), cycle); err != nil {
			return fmt.Errorf("drop shadowed score row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set period: %w", err)
	}
	return nil
}

func (s *PostgresScoreStore) ListObservations(ctx context.Context) ([]ScoreObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.institution_id, r.cycle, r.period,
		       r.self_awareness, r.career_exploration, r.planning, r.skills, r.confidence, r.overall
		FROM score_records r
		JOIN persons p ON p.id = r.person_id
		WHERE p.institution_id IS NOT NULL AND r.period <> ''
	`)
	if err != nil {
		return nil, fmt.Errorf("list score observations: %w", err)
	}
	defer rows.Close()

	var out []ScoreObservation
	for rows.Next() {
		var (
			rawInstitution string
			obs            ScoreObservation
			values         [6]sql.NullFloat64
		)
		if err := rows.Scan(&rawInstitution, &obs.Cycle, &obs.Period,
			&values[0], &values[1], &values[2], &values[3], &values[4], &values[5]); err != nil {
			return nil, fmt.Errorf("scan score observation: %w", err)
		}
		instID, err := id.ParseInstitutionID(rawInstitution)
		if err != nil {
			return nil, fmt.Errorf("parse institution id: %w", err)
		}
		obs.InstitutionID = instID
		obs.Values = make(map[string]float64)
		names := append(append([]string{}, domain.SubDimensions...), domain.DimensionOverall)
		for i, name := range names {
			if values[i].Valid {
				obs.Values[name] = values[i].Float64
			}
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (s *PostgresScoreStore) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "score_records")
}

func scanScore(row scanner) (*domain.ScoreRecord, error) {
	var (
		record domain.ScoreRecord
		rawID  string
	)
	err := row.Scan(
		&rawID,
		&record.Cycle,
		&record.Period,
		&record.SelfAwareness,
		&record.CareerExploration,
		&record.Planning,
		&record.Skills,
		&record.Confidence,
		&record.Overall,
		&record.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := id.ParsePersonID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse person id: %w", err)
	}
	record.PersonID = parsed
	return &record, nil
}
