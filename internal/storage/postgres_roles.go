package storage

import (
	"context"
	"database/sql"
	"fmt"

	"scoresync/internal/domain"
)

// PostgresAdvisorStore persists the advisors auxiliary role table.
type PostgresAdvisorStore struct {
	db *sql.DB
}

func NewPostgresAdvisorStore(db *sql.DB) *PostgresAdvisorStore {
	return &PostgresAdvisorStore{db: db}
}

func (s *PostgresAdvisorStore) Upsert(ctx context.Context, advisor *domain.Advisor) (bool, error) {
	if advisor == nil {
		return false, fmt.Errorf("advisor is required")
	}
	query := `
		INSERT INTO advisors (external_id, email, first_name, last_name, institution_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			institution_id = EXCLUDED.institution_id
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		advisor.ExternalID,
		advisor.Email,
		advisor.FirstName,
		advisor.LastName,
		nullableID(advisor.InstitutionID),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert advisor: %w", err)
	}
	return inserted, nil
}

func (s *PostgresAdvisorStore) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "advisors")
}

// PostgresStaffStore persists the staff auxiliary role table.
type PostgresStaffStore struct {
	db *sql.DB
}

func NewPostgresStaffStore(db *sql.DB) *PostgresStaffStore {
	return &PostgresStaffStore{db: db}
}

func (s *PostgresStaffStore) Upsert(ctx context.Context, staff *domain.StaffMember) (bool, error) {
	if staff == nil {
		return false, fmt.Errorf("staff member is required")
	}
	query := `
		INSERT INTO staff_members (external_id, email, first_name, last_name, title, institution_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			title = EXCLUDED.title,
			institution_id = EXCLUDED.institution_id
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		staff.ExternalID,
		staff.Email,
		staff.FirstName,
		staff.LastName,
		staff.Title,
		nullableID(staff.InstitutionID),
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert staff member: %w", err)
	}
	return inserted, nil
}

func (s *PostgresStaffStore) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "staff_members")
}
