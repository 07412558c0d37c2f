package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scoresync/internal/domain"
	id "scoresync/pkg/domain"
)

// PostgresPersonStore persists persons and their external-id aliases.
type PostgresPersonStore struct {
	db *sql.DB
}

func NewPostgresPersonStore(db *sql.DB) *PostgresPersonStore {
	return &PostgresPersonStore{db: db}
}

func (s *PostgresPersonStore) Upsert(ctx context.Context, person *domain.Person) (bool, error) {
	if person == nil {
		return false, fmt.Errorf("person is required")
	}
	query := `
		INSERT INTO persons (id, external_id, email, first_name, last_name, institution_id, group_name, cohort, current_period, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (email) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			institution_id = EXCLUDED.institution_id,
			group_name = EXCLUDED.group_name,
			cohort = EXCLUDED.cohort,
			current_period = CASE
				WHEN EXCLUDED.current_period = '' THEN persons.current_period
				ELSE EXCLUDED.current_period
			END,
			updated_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		person.ID.String(),
		person.ExternalID,
		person.Email,
		person.FirstName,
		person.LastName,
		nullableID(person.InstitutionID),
		person.GroupName,
		person.Cohort,
		person.CurrentPeriod,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert person: %w", err)
	}
	return inserted, nil
}

func (s *PostgresPersonStore) GetByEmail(ctx context.Context, email string) (*domain.Person, error) {
	query := `
		SELECT id, external_id, email, first_name, last_name, institution_id, group_name, cohort, current_period
		FROM persons
		WHERE email = $1
	`
	person, err := scanPerson(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person by email: %w", err)
	}
	return person, nil
}

func (s *PostgresPersonStore) GetByID(ctx context.Context, personID id.PersonID) (*domain.Person, error) {
	query := `
		SELECT id, external_id, email, first_name, last_name, institution_id, group_name, cohort, current_period
		FROM persons
		WHERE id = $1
	`
	person, err := scanPerson(s.db.QueryRowContext(ctx, query, personID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get person by id: %w", err)
	}
	return person, nil
}

func (s *PostgresPersonStore) BindAlias(ctx context.Context, externalID string, personID id.PersonID) error {
	query := `
		INSERT INTO person_aliases (external_id, person_id)
		VALUES ($1, $2)
		ON CONFLICT (external_id) DO UPDATE SET person_id = EXCLUDED.person_id
	`
	if _, err := s.db.ExecContext(ctx, query, externalID, personID.String()); err != nil {
		return fmt.Errorf("bind alias: %w", err)
	}
	return nil
}

func (s *PostgresPersonStore) ListAliases(ctx context.Context) (map[string]id.PersonID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT external_id, person_id FROM person_aliases`)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()
	return scanIDMap(rows)
}

func (s *PostgresPersonStore) ListEmails(ctx context.Context) (map[string]id.PersonID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email, id FROM persons`)
	if err != nil {
		return nil, fmt.Errorf("list emails: %w", err)
	}
	defer rows.Close()
	return scanIDMap(rows)
}

func (s *PostgresPersonStore) ListMissingPeriod(ctx context.Context) ([]domain.Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, email, first_name, last_name, institution_id, group_name, cohort, current_period
		FROM persons
		WHERE current_period = ''
	`)
	if err != nil {
		return nil, fmt.Errorf("list persons missing period: %w", err)
	}
	defer rows.Close()

	var out []domain.Person
	for rows.Next() {
		person, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, *person)
	}
	return out, rows.Err()
}

func (s *PostgresPersonStore) SetCurrentPeriod(ctx context.Context, personID id.PersonID, p string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE persons SET current_period = $2, updated_at = NOW() WHERE id = $1`,
		personID.String(), p,
	)
	if err != nil {
		return fmt.Errorf("set current period: %w", err)
	}
	return nil
}

func (s *PostgresPersonStore) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "persons")
}

func scanPerson(row scanner) (*domain.Person, error) {
	var (
		person        domain.Person
		rawID         string
		institutionID sql.NullString
	)
	err := row.Scan(
		&rawID,
		&person.ExternalID,
		&person.Email,
		&person.FirstName,
		&person.LastName,
		&institutionID,
		&person.GroupName,
		&person.Cohort,
		&person.CurrentPeriod,
	)
	if err != nil {
		return nil, err
	}
	parsed, err := id.ParsePersonID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse person id: %w", err)
	}
	person.ID = parsed
	if institutionID.Valid {
		instID, err := id.ParseInstitutionID(institutionID.String)
		if err != nil {
			return nil, fmt.Errorf("parse institution id: %w", err)
		}
		person.InstitutionID = instID
	}
	return &person, nil
}

func scanIDMap(rows *sql.Rows) (map[string]id.PersonID, error) {
	out := make(map[string]id.PersonID)
	for rows.Next() {
		var key, rawID string
		if err := rows.Scan(&key, &rawID); err != nil {
			return nil, fmt.Errorf("scan id map: %w", err)
		}
		parsed, err := id.ParsePersonID(rawID)
		if err != nil {
			return nil, fmt.Errorf("parse person id: %w", err)
		}
		out[key] = parsed
	}
	return out, rows.Err()
}
