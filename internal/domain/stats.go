package domain

import (
	id "scoresync/pkg/domain"
)

// HistogramBuckets is the fixed histogram width: one discrete bucket per
// rounded value on the 0..10 score domain. Response-scale dimensions simply
// occupy buckets 1..5.
const HistogramBuckets = 11

// GroupStatistic is a per-institution descriptive statistic for one
// (cycle, period, dimension). Statistics tables are derived state, fully
// recomputed each run.
type GroupStatistic struct {
	InstitutionID id.InstitutionID
	Cycle         int
	Period        string
	Dimension     string
	Mean          float64
	StdDev        float64
	P25           float64
	P50           float64
	P75           float64
	Count         int
	Histogram     []int64
}

// BenchmarkStatistic is the cross-institution aggregate for one
// (cycle, normalized period, dimension).
type BenchmarkStatistic struct {
	Cycle     int
	Period    string
	Dimension string
	Mean      float64
	StdDev    float64
	P25       float64
	P50       float64
	P75       float64
	Count     int
	Histogram []int64
}

// NewHistogram returns an empty fixed-width histogram.
func NewHistogram() []int64 {
	return make([]int64, HistogramBuckets)
}
