package stats

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoresync/internal/domain"
	"scoresync/internal/storage"
	id "scoresync/pkg/domain"
)

type fixture struct {
	persons   *storage.InMemoryPersonStore
	scores    *storage.InMemoryScoreStore
	responses *storage.InMemoryResponseStore
	stats     *storage.InMemoryStatsStore
}

func newFixture() *fixture {
	persons := storage.NewInMemoryPersonStore()
	return &fixture{
		persons:   persons,
		scores:    storage.NewInMemoryScoreStore(persons),
		responses: storage.NewInMemoryResponseStore(persons),
		stats:     storage.NewInMemoryStatsStore(),
	}
}

func (f *fixture) addPerson(t *testing.T, email string, inst id.InstitutionID, period string) id.PersonID {
	t.Helper()
	personID := id.NewPersonID()
	_, err := f.persons.Upsert(context.Background(), &domain.Person{
		ID:            personID,
		Email:         email,
		InstitutionID: inst,
		CurrentPeriod: period,
	})
	require.NoError(t, err)
	return personID
}

func (f *fixture) addOverall(t *testing.T, personID id.PersonID, cycle int, period string, overall float64) {
	t.Helper()
	_, err := f.scores.Upsert(context.Background(), &domain.ScoreRecord{
		PersonID: personID,
		Cycle:    cycle,
		Period:   period,
		Overall:  &overall,
	})
	require.NoError(t, err)
}

func (f *fixture) addAnswers(t *testing.T, personID id.PersonID, cycle int, answers map[string]int) {
	t.Helper()
	for questionID, value := range answers {
		_, err := f.responses.Upsert(context.Background(), &domain.ResponseRecord{
			PersonID:   personID,
			Cycle:      cycle,
			QuestionID: questionID,
			Value:      value,
		})
		require.NoError(t, err)
	}
}

func findGroup(rows []domain.GroupStatistic, inst id.InstitutionID, dimension string) (domain.GroupStatistic, bool) {
	for _, row := range rows {
		if row.InstitutionID == inst && row.Dimension == dimension {
			return row, true
		}
	}
	return domain.GroupStatistic{}, false
}

func TestRebuildScores_GroupAndWeightedBenchmark(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	instA := id.NewInstitutionID()
	instB := id.NewInstitutionID()

	// Institution A tracks calendar years; B runs on the fiscal rollover.
	// Normalization folds both into the same benchmark period.
	a1 := f.addPerson(t, "a1@example.edu", instA, "2025/2025")
	a2 := f.addPerson(t, "a2@example.edu", instA, "2025/2025")
	b1 := f.addPerson(t, "b1@example.edu", instB, "2025/2026")
	f.addOverall(t, a1, 1, "2025/2025", 4)
	f.addOverall(t, a2, 1, "2025/2025", 6)
	f.addOverall(t, b1, 1, "2025/2026", 8)

	agg := New(f.scores, f.responses, f.stats)
	groups, benchmarks, err := agg.RebuildScores(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, groups)
	assert.Equal(t, 1, benchmarks)

	groupRows := f.stats.GroupStatistics()
	rowA, ok := findGroup(groupRows, instA, domain.DimensionOverall)
	require.True(t, ok)
	assert.InDelta(t, 5.0, rowA.Mean, 1e-9)
	assert.Equal(t, 2, rowA.Count)
	assert.Equal(t, "2025/2025", rowA.Period, "group rows keep the raw period")

	benchRows := f.stats.BenchmarkStatistics()
	require.Len(t, benchRows, 1)
	bench := benchRows[0]
	assert.Equal(t, "2025/2026", bench.Period)
	assert.Equal(t, 3, bench.Count)
	assert.InDelta(t, 6.0, bench.Mean, 1e-9, "weighted by observation count")
	// Spread over the two institution means, 5 and 8.
	assert.InDelta(t, math.Sqrt(4.5), bench.StdDev, 1e-9)
	assert.InDelta(t, 6.5, bench.P50, 1e-9)
	assert.Equal(t, int64(1), bench.Histogram[4])
	assert.Equal(t, int64(1), bench.Histogram[6])
	assert.Equal(t, int64(1), bench.Histogram[8])
}

func TestRebuildScores_SingleInstitutionCarriesOwnSpread(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	inst := id.NewInstitutionID()
	p1 := f.addPerson(t, "p1@example.edu", inst, "2024/2025")
	p2 := f.addPerson(t, "p2@example.edu", inst, "2024/2025")
	f.addOverall(t, p1, 1, "2024/2025", 3)
	f.addOverall(t, p2, 1, "2024/2025", 7)

	_, _, err := New(f.scores, f.responses, f.stats).RebuildScores(ctx)
	require.NoError(t, err)

	benchRows := f.stats.BenchmarkStatistics()
	require.Len(t, benchRows, 1)
	groupRows := f.stats.GroupStatistics()
	require.Len(t, groupRows, 1)
	assert.InDelta(t, groupRows[0].StdDev, benchRows[0].StdDev, 1e-9)
	assert.InDelta(t, groupRows[0].P25, benchRows[0].P25, 1e-9)
	assert.InDelta(t, groupRows[0].P75, benchRows[0].P75, 1e-9)
}

func TestRebuildReadiness_RequiresAllQuestions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	inst := id.NewInstitutionID()

	complete := f.addPerson(t, "c@example.edu", inst, "2025/2026")
	partial := f.addPerson(t, "p@example.edu", inst, "2025/2026")
	f.addAnswers(t, complete, 1, map[string]int{"Q31": 3, "Q32": 4, "Q33": 5})
	f.addAnswers(t, partial, 1, map[string]int{"Q31": 5, "Q32": 5})

	agg := New(f.scores, f.responses, f.stats, WithReadinessMinCount(1))
	groups, benchmarks, err := agg.RebuildReadiness(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, groups)
	assert.Equal(t, 1, benchmarks)

	groupRows := f.stats.GroupStatistics()
	require.Len(t, groupRows, 1)
	row := groupRows[0]
	assert.Equal(t, domain.DimensionReadiness, row.Dimension)
	assert.Equal(t, 1, row.Count, "partial answer sets are excluded")
	assert.InDelta(t, 4.0, row.Mean, 1e-9)
}

func TestRebuildReadiness_SuppressesSmallBenchmarkGroups(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	inst := id.NewInstitutionID()
	personID := f.addPerson(t, "solo@example.edu", inst, "2025/2026")
	f.addAnswers(t, personID, 1, map[string]int{"Q31": 4, "Q32": 4, "Q33": 4})

	groups, benchmarks, err := New(f.scores, f.responses, f.stats).RebuildReadiness(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, groups, "institution row always published")
	assert.Zero(t, benchmarks, "below the minimum observation count")
}

func TestRebuild_ReplacesOnlyNamedDimensions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	inst := id.NewInstitutionID()
	personID := f.addPerson(t, "r@example.edu", inst, "2025/2026")
	f.addOverall(t, personID, 1, "2025/2026", 5)
	f.addAnswers(t, personID, 1, map[string]int{"Q31": 2, "Q32": 3, "Q33": 4})

	agg := New(f.scores, f.responses, f.stats, WithReadinessMinCount(1))
	require.NoError(t, agg.Rebuild(ctx))

	// A second full rebuild must not drop or duplicate the other dimension's
	// rows.
	require.NoError(t, agg.Rebuild(ctx))

	groupRows := f.stats.GroupStatistics()
	require.Len(t, groupRows, 2)
	_, hasOverall := findGroup(groupRows, inst, domain.DimensionOverall)
	_, hasReadiness := findGroup(groupRows, inst, domain.DimensionReadiness)
	assert.True(t, hasOverall)
	assert.True(t, hasReadiness)
}
