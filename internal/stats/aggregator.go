package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"scoresync/internal/domain"
	"scoresync/internal/period"
	"scoresync/internal/storage"
	id "scoresync/pkg/domain"
)

// Default outcome-question configuration for the readiness index.
var DefaultReadinessQuestions = []string{"Q31", "Q32", "Q33"}

// DefaultReadinessMinCount is the smallest observation count a readiness
// benchmark row may be published with. Smaller groups are suppressed to keep
// individual institutions from being identifiable in the cross-institution
// aggregate.
const DefaultReadinessMinCount = 11

// Aggregator rebuilds the group and benchmark statistics tables.
type Aggregator struct {
	scores    storage.ScoreStore
	responses storage.ResponseStore
	store     storage.StatsStore

	questions []string
	minCount  int
	logger    *slog.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) { a.logger = logger }
}

func WithReadinessQuestions(questions []string) Option {
	return func(a *Aggregator) {
		if len(questions) > 0 {
			a.questions = questions
		}
	}
}

func WithReadinessMinCount(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.minCount = n
		}
	}
}

func New(scores storage.ScoreStore, responses storage.ResponseStore, store storage.StatsStore, opts ...Option) *Aggregator {
	a := &Aggregator{
		scores:    scores,
		responses: responses,
		store:     store,
		questions: DefaultReadinessQuestions,
		minCount:  DefaultReadinessMinCount,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Rebuild recomputes every derived statistic: the six score dimensions first,
// then the readiness index.
func (a *Aggregator) Rebuild(ctx context.Context) error {
	groups, benchmarks, err := a.RebuildScores(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("score statistics rebuilt", "group_rows", groups, "benchmark_rows", benchmarks)

	groups, benchmarks, err = a.RebuildReadiness(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("readiness statistics rebuilt", "group_rows", groups, "benchmark_rows", benchmarks)
	return nil
}

// RebuildScores recomputes group and benchmark statistics for the five
// sub-dimensions plus overall, replacing exactly those dimension rows.
func (a *Aggregator) RebuildScores(ctx context.Context) (groupRows, benchmarkRows int, err error) {
	observations, err := a.scores.ListObservations(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list score observations: %w", err)
	}

	cells := make(map[cellKey][]float64)
	for _, obs := range observations {
		for dimension, value := range obs.Values {
			key := cellKey{
				InstitutionID: obs.InstitutionID,
				Cycle:         obs.Cycle,
				Period:        obs.Period,
				Dimension:     dimension,
			}
			cells[key] = append(cells[key], value)
		}
	}

	groups := buildGroups(cells)
	benchmarks := buildBenchmarks(groups, 0)

	dimensions := append(append([]string{}, domain.SubDimensions...), domain.DimensionOverall)
	if err := a.store.ReplaceGroup(ctx, dimensions, groups); err != nil {
		return 0, 0, fmt.Errorf("replace group statistics: %w", err)
	}
	if err := a.store.ReplaceBenchmark(ctx, dimensions, benchmarks); err != nil {
		return 0, 0, fmt.Errorf("replace benchmark statistics: %w", err)
	}
	return len(groups), len(benchmarks), nil
}

// RebuildReadiness derives the per-person readiness index from the outcome
// questions and recomputes its group and benchmark rows. A person only
// contributes for a cycle when all configured questions were answered.
// Benchmark rows under the minimum observation count are suppressed.
func (a *Aggregator) RebuildReadiness(ctx context.Context) (groupRows, benchmarkRows int, err error) {
	observations, err := a.responses.ListByQuestions(ctx, a.questions)
	if err != nil {
		return 0, 0, fmt.Errorf("list readiness responses: %w", err)
	}

	type personCycle struct {
		PersonID id.PersonID
		Cycle    int
	}
	type answers struct {
		InstitutionID id.InstitutionID
		Period        string
		Values        map[string]int
	}

	byPerson := make(map[personCycle]*answers)
	for _, obs := range observations {
		if obs.InstitutionID.IsNil() || obs.Period == "" {
			continue
		}
		key := personCycle{PersonID: obs.PersonID, Cycle: obs.Cycle}
		entry, ok := byPerson[key]
		if !ok {
			entry = &answers{
				InstitutionID: obs.InstitutionID,
				Period:        obs.Period,
				Values:        make(map[string]int),
			}
			byPerson[key] = entry
		}
		entry.Values[obs.QuestionID] = obs.Value
	}

	cells := make(map[cellKey][]float64)
	for key, entry := range byPerson {
		if len(entry.Values) < len(a.questions) {
			continue
		}
		var sum float64
		for _, v := range entry.Values {
			sum += float64(v)
		}
		cell := cellKey{
			InstitutionID: entry.InstitutionID,
			Cycle:         key.Cycle,
			Period:        entry.Period,
			Dimension:     domain.DimensionReadiness,
		}
		cells[cell] = append(cells[cell], sum/float64(len(entry.Values)))
	}

	groups := buildGroups(cells)
	benchmarks := buildBenchmarks(groups, a.minCount)

	dimensions := []string{domain.DimensionReadiness}
	if err := a.store.ReplaceGroup(ctx, dimensions, groups); err != nil {
		return 0, 0, fmt.Errorf("replace readiness group statistics: %w", err)
	}
	if err := a.store.ReplaceBenchmark(ctx, dimensions, benchmarks); err != nil {
		return 0, 0, fmt.Errorf("replace readiness benchmark statistics: %w", err)
	}
	return len(groups), len(benchmarks), nil
}

type cellKey struct {
	InstitutionID id.InstitutionID
	Cycle         int
	Period        string
	Dimension     string
}

func buildGroups(cells map[cellKey][]float64) []domain.GroupStatistic {
	out := make([]domain.GroupStatistic, 0, len(cells))
	for key, values := range cells {
		s := Describe(values)
		out = append(out, domain.GroupStatistic{
			InstitutionID: key.InstitutionID,
			Cycle:         key.Cycle,
			Period:        key.Period,
			Dimension:     key.Dimension,
			Mean:          s.Mean,
			StdDev:        s.StdDev,
			P25:           s.P25,
			P50:           s.P50,
			P75:           s.P75,
			Count:         s.Count,
			Histogram:     s.Histogram,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.InstitutionID != b.InstitutionID {
			return a.InstitutionID.String() < b.InstitutionID.String()
		}
		if a.Cycle != b.Cycle {
			return a.Cycle < b.Cycle
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Dimension < b.Dimension
	})
	return out
}

// buildBenchmarks folds per-institution rows into cross-institution rows
// keyed by (cycle, normalized period, dimension). The mean is weighted by
// each institution's observation count; spread statistics describe the
// distribution of institution means, except with a single contributing
// institution, whose own spread is carried through. Rows with fewer than
// minCount observations are dropped when minCount is positive.
func buildBenchmarks(groups []domain.GroupStatistic, minCount int) []domain.BenchmarkStatistic {
	type benchKey struct {
		Cycle     int
		Period    string
		Dimension string
	}
	byKey := make(map[benchKey][]domain.GroupStatistic)
	for _, g := range groups {
		key := benchKey{
			Cycle:     g.Cycle,
			Period:    period.NormalizeForBenchmark(g.Period),
			Dimension: g.Dimension,
		}
		byKey[key] = append(byKey[key], g)
	}

	out := make([]domain.BenchmarkStatistic, 0, len(byKey))
	for key, members := range byKey {
		var (
			total    int
			weighted float64
			hist     = domain.NewHistogram()
			means    = make([]float64, 0, len(members))
		)
		for _, m := range members {
			total += m.Count
			weighted += m.Mean * float64(m.Count)
			means = append(means, m.Mean)
			for i, c := range m.Histogram {
				if i < len(hist) {
					hist[i] += c
				}
			}
		}
		if total == 0 || (minCount > 0 && total < minCount) {
			continue
		}

		b := domain.BenchmarkStatistic{
			Cycle:     key.Cycle,
			Period:    key.Period,
			Dimension: key.Dimension,
			Mean:      weighted / float64(total),
			Count:     total,
			Histogram: hist,
		}
		if len(members) == 1 {
			b.StdDev = members[0].StdDev
			b.P25 = members[0].P25
			b.P50 = members[0].P50
			b.P75 = members[0].P75
		} else {
			spread := Describe(means)
			b.StdDev = spread.StdDev
			b.P25 = spread.P25
			b.P50 = spread.P50
			b.P75 = spread.P75
		}
		out = append(out, b)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Cycle != b.Cycle {
			return a.Cycle < b.Cycle
		}
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		return a.Dimension < b.Dimension
	})
	return out
}
