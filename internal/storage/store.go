// Package storage persists sync-managed tables. Stores are interface-driven
// to keep the pipeline testable and to allow swapping in-memory and
// PostgreSQL persistence without rewiring business code. Stores are pure
// I/O; dedup, guards, and validation belong to the writer and services.
package storage

import (
	"context"
	"time"

	"scoresync/internal/domain"
	id "scoresync/pkg/domain"
)

// InstitutionStore persists institutions keyed by external id.
type InstitutionStore interface {
	Upsert(ctx context.Context, inst *domain.Institution) (inserted bool, err error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Institution, error)
	List(ctx context.Context) ([]domain.Institution, error)
	Count(ctx context.Context) (int, error)
}

// PersonStore persists persons keyed by normalized email, plus the alias
// table binding every external id ever seen to its internal person.
type PersonStore interface {
	Upsert(ctx context.Context, person *domain.Person) (inserted bool, err error)
	GetByEmail(ctx context.Context, email string) (*domain.Person, error)
	GetByID(ctx context.Context, personID id.PersonID) (*domain.Person, error)
	BindAlias(ctx context.Context, externalID string, personID id.PersonID) error
	ListAliases(ctx context.Context) (map[string]id.PersonID, error)
	ListEmails(ctx context.Context) (map[string]id.PersonID, error)
	ListMissingPeriod(ctx context.Context) ([]domain.Person, error)
	SetCurrentPeriod(ctx context.Context, personID id.PersonID, period string) error
	Count(ctx context.Context) (int, error)
}

// AdvisorStore persists the advisors auxiliary role table.
type AdvisorStore interface {
	Upsert(ctx context.Context, advisor *domain.Advisor) (inserted bool, err error)
	Count(ctx context.Context) (int, error)
}

// StaffStore persists the staff auxiliary role table.
type StaffStore interface {
	Upsert(ctx context.Context, staff *domain.StaffMember) (inserted bool, err error)
	Count(ctx context.Context) (int, error)
}

// ScoreStore persists score records keyed by (person, cycle, period).
type ScoreStore interface {
	Upsert(ctx context.Context, record *domain.ScoreRecord) (inserted bool, err error)
	GetByKey(ctx context.Context, personID id.PersonID, cycle int, period string) (*domain.ScoreRecord, error)
	ListMissingPeriod(ctx context.Context) ([]domain.ScoreRecord, error)
	SetPeriod(ctx context.Context, personID id.PersonID, cycle int, period string) error
	ListObservations(ctx context.Context) ([]ScoreObservation, error)
	Count(ctx context.Context) (int, error)
}

// ResponseStore persists item-level responses keyed by
// (person, cycle, question).
type ResponseStore interface {
	Upsert(ctx context.Context, record *domain.ResponseRecord) (inserted bool, err error)
	GetByKey(ctx context.Context, personID id.PersonID, cycle int, questionID string) (*domain.ResponseRecord, error)
	ListByQuestions(ctx context.Context, questionIDs []string) ([]ResponseObservation, error)
	Count(ctx context.Context) (int, error)
}

// StatsStore persists derived statistics. Replace semantics implement the
// full-recompute contract: delete the named dimensions, then insert.
type StatsStore interface {
	ReplaceGroup(ctx context.Context, dimensions []string, stats []domain.GroupStatistic) error
	ReplaceBenchmark(ctx context.Context, dimensions []string, stats []domain.BenchmarkStatistic) error
	CountGroup(ctx context.Context) (int, error)
	CountBenchmark(ctx context.Context) (int, error)
}

// RunStore is the queryable run history consumed by observability tooling.
type RunStore interface {
	Append(ctx context.Context, run *RunRecord) error
	ListRecent(ctx context.Context, limit int) ([]RunRecord, error)
}

// ScoreObservation is one score row joined with its person's institution,
// shaped for the statistics aggregator. Values holds only captured
// dimensions.
type ScoreObservation struct {
	InstitutionID id.InstitutionID
	Cycle         int
	Period        string
	Values        map[string]float64
}

// ResponseObservation is one outcome-question answer joined with person
// context, shaped for the readiness aggregation.
type ResponseObservation struct {
	PersonID      id.PersonID
	InstitutionID id.InstitutionID
	Cycle         int
	Period        string
	QuestionID    string
	Value         int
}

// RunRecord is one run-history entry.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     string
	Summary    string
	Tables     string
}
