package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribe_KnownDistribution(t *testing.T) {
	s := Describe([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	assert.InDelta(t, math.Sqrt(32.0/7.0), s.StdDev, 1e-9)
	assert.InDelta(t, 4.0, s.P25, 1e-9)
	assert.InDelta(t, 4.5, s.P50, 1e-9)
	assert.InDelta(t, 5.5, s.P75, 1e-9)
	assert.Equal(t, 8, s.Count)
}

func TestDescribe_SingleValue(t *testing.T) {
	s := Describe([]float64{6.2})

	assert.InDelta(t, 6.2, s.Mean, 1e-9)
	assert.Zero(t, s.StdDev, "one value has no spread, not NaN")
	assert.InDelta(t, 6.2, s.P25, 1e-9)
	assert.InDelta(t, 6.2, s.P50, 1e-9)
	assert.InDelta(t, 6.2, s.P75, 1e-9)
	assert.Equal(t, 1, s.Count)
}

func TestDescribe_HistogramBucketsByRoundedValue(t *testing.T) {
	s := Describe([]float64{0, 0.4, 0.6, 4.5, 9.6, 10})

	assert.Equal(t, int64(2), s.Histogram[0])
	assert.Equal(t, int64(1), s.Histogram[1])
	assert.Equal(t, int64(1), s.Histogram[5], "half rounds away from zero")
	assert.Equal(t, int64(2), s.Histogram[10])
}

func TestDescribe_HistogramClampsOutOfDomain(t *testing.T) {
	s := Describe([]float64{-0.8, 11.3})

	assert.Equal(t, int64(1), s.Histogram[0])
	assert.Equal(t, int64(1), s.Histogram[10])
}

func TestDescribe_Empty(t *testing.T) {
	s := Describe(nil)

	assert.Zero(t, s.Count)
	assert.Len(t, s.Histogram, 11)
}

func TestPercentile_Interpolates(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}

	assert.InDelta(t, 1.75, percentile(sorted, 25), 1e-9)
	assert.InDelta(t, 2.5, percentile(sorted, 50), 1e-9)
	assert.InDelta(t, 4.0, percentile(sorted, 100), 1e-9)
}
