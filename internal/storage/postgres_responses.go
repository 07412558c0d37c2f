package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"scoresync/internal/domain"
	id "scoresync/pkg/domain"
)

// PostgresResponseStore persists item-level responses keyed by
// (person, cycle, question).
type PostgresResponseStore struct {
	db *sql.DB
}

func NewPostgresResponseStore(db *sql.DB) *PostgresResponseStore {
	return &PostgresResponseStore{db: db}
}

func (s *PostgresResponseStore) Upsert(ctx context.Context, record *domain.ResponseRecord) (bool, error) {
	if record == nil {
		return false, fmt.Errorf("response record is required")
	}
	query := `
		INSERT INTO response_records (person_id, cycle, question_id, value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (person_id, cycle, question_id) DO UPDATE SET
			value = EXCLUDED.value
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		record.PersonID.String(),
		record.Cycle,
		record.QuestionID,
		record.Value,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert response record: %w", err)
	}
	return inserted, nil
}

func (s *PostgresResponseStore) GetByKey(ctx context.Context, personID id.PersonID, cycle int, questionID string) (*domain.ResponseRecord, error) {
	query := `
		SELECT person_id, cycle, question_id, value
		FROM response_records
		WHERE person_id = $1 AND cycle = $2 AND question_id = $3
	`
	var (
		record domain.ResponseRecord
		rawID  string
	)
	err := s.db.QueryRowContext(ctx, query, personID.String(), cycle, questionID).
		Scan(&rawID, &record.Cycle, &record.QuestionID, &record.Value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get response record: %w", err)
	}
	parsed, err := id.ParsePersonID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse person id: %w", err)
	}
	record.PersonID = parsed
	return &record, nil
}

func (s *PostgresResponseStore) ListByQuestions(ctx context.Context, questionIDs []string) ([]ResponseObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.person_id, p.institution_id, r.cycle, p.current_period, r.question_id, r.value
		FROM response_records r
		JOIN persons p ON p.id = r.person_id
		WHERE r.question_id = ANY($1)
		  AND p.institution_id IS NOT NULL
		  AND p.current_period <> ''
	`, pq.Array(questionIDs))
	if err != nil {
		return nil, fmt.Errorf("list responses by question: %w", err)
	}
	defer rows.Close()

	var out []ResponseObservation
	for rows.Next() {
		var (
			obs            ResponseObservation
			rawPerson      string
			rawInstitution string
		)
		if err := rows.Scan(&rawPerson, &rawInstitution, &obs.Cycle, &obs.Period, &obs.QuestionID, &obs.Value); err != nil {
			return nil, fmt.Errorf("scan response observation: %w", err)
		}
		personID, err := id.ParsePersonID(rawPerson)
		if err != nil {
			return nil, fmt.Errorf("parse person id: %w", err)
		}
		instID, err := id.ParseInstitutionID(rawInstitution)
		if err != nil {
			return nil, fmt.Errorf("parse institution id: %w", err)
		}
		obs.PersonID = personID
		obs.InstitutionID = instID
		out = append(out, obs)
	}
	return out, rows.Err()
}

func (s *PostgresResponseStore) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "response_records")
}
