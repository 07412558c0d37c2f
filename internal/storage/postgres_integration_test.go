//go:build integration

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/domain"
	"scoresync/internal/storage"
	id "scoresync/pkg/domain"
	"scoresync/pkg/testutil/containers"
)

func setupDB(t *testing.T) (*containers.PostgresContainer, context.Context) {
	t.Helper()
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	require.NoError(t, storage.Migrate(ctx, pc.DB))
	require.NoError(t, pc.TruncateAll(ctx))
	return pc, ctx
}

func seedInstitution(t *testing.T, ctx context.Context, store *storage.PostgresInstitutionStore) domain.Institution {
	t.Helper()
	inst := domain.Institution{
		ID:         id.NewInstitutionID(),
		ExternalID: "inst-1",
		Name:       "Northfield College",
		UpdatedAt:  time.Now().UTC(),
	}
	_, err := store.Upsert(ctx, &inst)
	require.NoError(t, err)
	return inst
}

func seedPerson(t *testing.T, ctx context.Context, store *storage.PostgresPersonStore, email, period string, instID id.InstitutionID) domain.Person {
	t.Helper()
	person := domain.Person{
		ID:            id.NewPersonID(),
		ExternalID:    "ext-" + email,
		Email:         email,
		InstitutionID: instID,
		CurrentPeriod: period,
	}
	_, err := store.Upsert(ctx, &person)
	require.NoError(t, err)
	return person
}

func TestPostgresInstitutionStore_UpsertDetectsInsertVsUpdate(t *testing.T) {
	pc, ctx := setupDB(t)
	store := storage.NewPostgresInstitutionStore(pc.DB)

	inst := domain.Institution{ID: id.NewInstitutionID(), ExternalID: "inst-1", Name: "Before", UpdatedAt: time.Now()}
	inserted, err := store.Upsert(ctx, &inst)
	require.NoError(t, err)
	assert.True(t, inserted)

	inst.Name = "After"
	inserted, err = store.Upsert(ctx, &inst)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := store.GetByExternalID(ctx, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "After", got.Name)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresPersonStore_EmailConflictPreservesPeriod(t *testing.T) {
	pc, ctx := setupDB(t)
	store := storage.NewPostgresPersonStore(pc.DB)

	first := seedPerson(t, ctx, store, "jane@example.edu", "2025/2026", id.InstitutionID{})

	// Re-upload with a new external id and an empty period.
	update := domain.Person{
		ID:         id.NewPersonID(),
		ExternalID: "ext-reissued",
		Email:      "jane@example.edu",
	}
	inserted, err := store.Upsert(ctx, &update)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := store.GetByEmail(ctx, "jane@example.edu")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID, "email conflict keeps the original id")
	assert.Equal(t, "ext-reissued", got.ExternalID)
	assert.Equal(t, "2025/2026", got.CurrentPeriod, "empty period does not overwrite")

	byID, err := store.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Email, byID.Email)
}

func TestPostgresPersonStore_AliasRoundTrip(t *testing.T) {
	pc, ctx := setupDB(t)
	store := storage.NewPostgresPersonStore(pc.DB)
	person := seedPerson(t, ctx, store, "sam@example.edu", "", id.InstitutionID{})

	require.NoError(t, store.BindAlias(ctx, "ext-1", person.ID))
	require.NoError(t, store.BindAlias(ctx, "ext-2", person.ID))

	aliases, err := store.ListAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, person.ID, aliases["ext-1"])
	assert.Equal(t, person.ID, aliases["ext-2"])

	emails, err := store.ListEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, person.ID, emails["sam@example.edu"])
}

func TestPostgresScoreStore_SetPeriodMigratesKey(t *testing.T) {
	pc, ctx := setupDB(t)
	persons := storage.NewPostgresPersonStore(pc.DB)
	scores := storage.NewPostgresScoreStore(pc.DB)
	person := seedPerson(t, ctx, persons, "p@example.edu", "2025/2026", id.InstitutionID{})

	overall := 6.5
	_, err := scores.Upsert(ctx, &domain.ScoreRecord{PersonID: person.ID, Cycle: 1, Overall: &overall})
	require.NoError(t, err)

	missing, err := scores.ListMissingPeriod(ctx)
	require.NoError(t, err)
	require.Len(t, missing, 1)

	require.NoError(t, scores.SetPeriod(ctx, person.ID, 1, "2025/2026"))

	got, err := scores.GetByKey(ctx, person.ID, 1, "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, 6.5, *got.Overall)

	missing, err = scores.ListMissingPeriod(ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestPostgresScoreStore_SetPeriodDropsShadowedRow(t *testing.T) {
	pc, ctx := setupDB(t)
	persons := storage.NewPostgresPersonStore(pc.DB)
	scores := storage.NewPostgresScoreStore(pc.DB)
	person := seedPerson(t, ctx, persons, "p@example.edu", "2025/2026", id.InstitutionID{})

	kept := 8.0
	stale := 3.0
	_, err := scores.Upsert(ctx, &domain.ScoreRecord{PersonID: person.ID, Cycle: 1, Period: "2025/2026", Overall: &kept})
	require.NoError(t, err)
	_, err = scores.Upsert(ctx, &domain.ScoreRecord{PersonID: person.ID, Cycle: 1, Overall: &stale})
	require.NoError(t, err)

	require.NoError(t, scores.SetPeriod(ctx, person.ID, 1, "2025/2026"))

	got, err := scores.GetByKey(ctx, person.ID, 1, "2025/2026")
	require.NoError(t, err)
	assert.Equal(t, 8.0, *got.Overall, "existing row at the target key wins")

	n, err := scores.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresScoreStore_ObservationsJoinInstitution(t *testing.T) {
	pc, ctx := setupDB(t)
	institutions := storage.NewPostgresInstitutionStore(pc.DB)
	persons := storage.NewPostgresPersonStore(pc.DB)
	scores := storage.NewPostgresScoreStore(pc.DB)

	inst := seedInstitution(t, ctx, institutions)
	linked := seedPerson(t, ctx, persons, "linked@example.edu", "2025/2026", inst.ID)
	orphan := seedPerson(t, ctx, persons, "orphan@example.edu", "", id.InstitutionID{})

	v := 7.0
	_, err := scores.Upsert(ctx, &domain.ScoreRecord{PersonID: linked.ID, Cycle: 1, Period: "2025/2026", SelfAwareness: &v, Overall: &v})
	require.NoError(t, err)
	_, err = scores.Upsert(ctx, &domain.ScoreRecord{PersonID: orphan.ID, Cycle: 1, Period: "2025/2026", Overall: &v})
	require.NoError(t, err)

	obs, err := scores.ListObservations(ctx)
	require.NoError(t, err)
	require.Len(t, obs, 1, "rows without an institution are excluded")
	assert.Equal(t, inst.ID, obs[0].InstitutionID)
	assert.Equal(t, 7.0, obs[0].Values[domain.DimensionSelfAwareness])
	assert.Equal(t, 7.0, obs[0].Values[domain.DimensionOverall])
	assert.NotContains(t, obs[0].Values, domain.DimensionPlanning, "uncaptured dimensions stay absent")
}

func TestPostgresResponseStore_ListByQuestions(t *testing.T) {
	pc, ctx := setupDB(t)
	institutions := storage.NewPostgresInstitutionStore(pc.DB)
	persons := storage.NewPostgresPersonStore(pc.DB)
	responses := storage.NewPostgresResponseStore(pc.DB)

	inst := seedInstitution(t, ctx, institutions)
	person := seedPerson(t, ctx, persons, "r@example.edu", "2025/2026", inst.ID)

	for q, v := range map[string]int{"Q31": 4, "Q32": 5, "Q10": 2} {
		_, err := responses.Upsert(ctx, &domain.ResponseRecord{PersonID: person.ID, Cycle: 1, QuestionID: q, Value: v})
		require.NoError(t, err)
	}

	obs, err := responses.ListByQuestions(ctx, []string{"Q31", "Q32", "Q33"})
	require.NoError(t, err)
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.Equal(t, inst.ID, o.InstitutionID)
		assert.Equal(t, "2025/2026", o.Period)
	}
}

func TestPostgresStatsStore_ReplaceRoundTripsHistogram(t *testing.T) {
	pc, ctx := setupDB(t)
	store := storage.NewPostgresStatsStore(pc.DB)

	instID := id.NewInstitutionID()
	hist := domain.NewHistogram()
	hist[7] = 3
	rows := []domain.GroupStatistic{{
		InstitutionID: instID,
		Cycle:         1,
		Period:        "2025/2026",
		Dimension:     domain.DimensionOverall,
		Mean:          7, StdDev: 0.5, P25: 6.5, P50: 7, P75: 7.5,
		Count:     3,
		Histogram: hist,
	}}
	require.NoError(t, store.ReplaceGroup(ctx, []string{domain.DimensionOverall}, rows))
	require.NoError(t, store.ReplaceBenchmark(ctx, []string{domain.DimensionOverall}, []domain.BenchmarkStatistic{{
		Cycle: 1, Period: "2025/2026", Dimension: domain.DimensionOverall,
		Mean: 7, Count: 3, Histogram: hist,
	}}))

	// Replacing the same dimension set must not accumulate rows.
	require.NoError(t, store.ReplaceGroup(ctx, []string{domain.DimensionOverall}, rows))

	n, err := store.CountGroup(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.CountBenchmark(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPostgresRunStore_AppendAndList(t *testing.T) {
	pc, ctx := setupDB(t)
	store := storage.NewPostgresRunStore(pc.DB)

	started := time.Now().UTC().Truncate(time.Second)
	run := &storage.RunRecord{
		RunID:      "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Result:     "success",
		Summary:    "tables=6",
		Tables:     `[{"table":"persons"}]`,
	}
	require.NoError(t, store.Append(ctx, run))

	// Appending again with a final result updates in place.
	run.Result = "failed"
	require.NoError(t, store.Append(ctx, run))

	got, err := store.ListRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "failed", got[0].Result)
}
