package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scoresync/internal/domain"
	id "scoresync/pkg/domain"
)

// PostgresInstitutionStore persists institutions in PostgreSQL.
type PostgresInstitutionStore struct {
	db *sql.DB
}

func NewPostgresInstitutionStore(db *sql.DB) *PostgresInstitutionStore {
	return &PostgresInstitutionStore{db: db}
}

func (s *PostgresInstitutionStore) Upsert(ctx context.Context, inst *domain.Institution) (bool, error) {
	if inst == nil {
		return false, fmt.Errorf("institution is required")
	}
	query := `
		INSERT INTO institutions (id, external_id, name, calendar_year, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			name = EXCLUDED.name,
			calendar_year = EXCLUDED.calendar_year,
			updated_at = NOW()
		RETURNING (xmax = 0)
	`
	var inserted bool
	err := s.db.QueryRowContext(ctx, query,
		inst.ID.String(),
		inst.ExternalID,
		inst.Name,
		inst.UsesCalendarYear,
	).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert institution: %w", err)
	}
	return inserted, nil
}

func (s *PostgresInstitutionStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Institution, error) {
	query := `
		SELECT id, external_id, name, calendar_year, updated_at
		FROM institutions
		WHERE external_id = $1
	`
	inst, err := scanInstitution(s.db.QueryRowContext(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get institution: %w", err)
	}
	return inst, nil
}

func (s *PostgresInstitutionStore) List(ctx context.Context) ([]domain.Institution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, external_id, name, calendar_year, updated_at
		FROM institutions
		ORDER BY external_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	var out []domain.Institution
	for rows.Next() {
		inst, err := scanInstitution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan institution: %w", err)
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

func (s *PostgresInstitutionStore) Count(ctx context.Context) (int, error) {
	return countRows(ctx, s.db, "institutions")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstitution(row scanner) (*domain.Institution, error) {
	var (
		inst  domain.Institution
		rawID string
	)
	if err := row.Scan(&rawID, &inst.ExternalID, &inst.Name, &inst.UsesCalendarYear, &inst.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseInstitutionID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse institution id: %w", err)
	}
	inst.ID = parsed
	return &inst, nil
}

// nullableID maps the nil institution id to SQL NULL for persons synced
// before their institution.
func nullableID(instID id.InstitutionID) any {
	if instID.IsNil() {
		return nil
	}
	return instID.String()
}

func countRows(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
