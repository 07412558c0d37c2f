//go:build integration

package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance.
type PostgresContainer struct {
	Container testcontainers.Container
	URL       string
	DB        *sql.DB
}

// NewPostgresContainer starts a new PostgreSQL container and opens a pool
// against it.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("scoresync"),
		tcpostgres.WithUsername("scoresync"),
		tcpostgres.WithPassword("scoresync"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres pool: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	return &PostgresContainer{
		Container: container,
		URL:       url,
		DB:        db,
	}
}

// TruncateAll empties every sync-managed table. Use between tests to ensure
// isolation.
func (p *PostgresContainer) TruncateAll(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `
		TRUNCATE institutions, persons, person_aliases, advisors, staff_members,
			score_records, response_records, group_statistics,
			benchmark_statistics, sync_runs
	`)
	return err
}
