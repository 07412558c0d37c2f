// Package stats recomputes the derived statistics tables from raw score and
// response observations. Everything here is a full rebuild per dimension set;
// there is no incremental path.
package stats

import (
	"math"
	"sort"

	"scoresync/internal/domain"
)

// Summary holds the descriptive statistics for one group of values.
type Summary struct {
	Mean      float64
	StdDev    float64
	P25       float64
	P50       float64
	P75       float64
	Count     int
	Histogram []int64
}

// Describe computes mean, sample standard deviation, quartiles, and the
// fixed-width histogram for a non-empty value set. Standard deviation is 0
// for a single value rather than NaN.
func Describe(values []float64) Summary {
	n := len(values)
	if n == 0 {
		return Summary{Histogram: domain.NewHistogram()}
	}

	var sum float64
	hist := domain.NewHistogram()
	for _, v := range values {
		sum += v
		hist[bucket(v)]++
	}
	mean := sum / float64(n)

	var stddev float64
	if n > 1 {
		var sq float64
		for _, v := range values {
			d := v - mean
			sq += d * d
		}
		stddev = math.Sqrt(sq / float64(n-1))
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	return Summary{
		Mean:      mean,
		StdDev:    stddev,
		P25:       percentile(sorted, 25),
		P50:       percentile(sorted, 50),
		P75:       percentile(sorted, 75),
		Count:     n,
		Histogram: hist,
	}
}

// percentile interpolates linearly between the two closest ranks of an
// ascending-sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(n-1)
	lower := int(math.Floor(rank))
	if lower >= n-1 {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

// bucket maps a value to its histogram slot: one slot per rounded point on
// the score domain, clamped at the edges.
func bucket(v float64) int {
	b := int(math.Round(v))
	if b < 0 {
		return 0
	}
	if b >= domain.HistogramBuckets {
		return domain.HistogramBuckets - 1
	}
	return b
}
