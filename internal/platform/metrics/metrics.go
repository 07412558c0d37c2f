package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the sync engine.
type Metrics struct {
	PagesFetched   *prometheus.CounterVec
	FetchFailures  *prometheus.CounterVec
	RowsWritten    *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	RunsCompleted  *prometheus.CounterVec
	RecordsSkipped *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		PagesFetched: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scoresync_pages_fetched_total",
			Help: "Source pages fetched successfully, by collection",
		}, []string{"collection"}),
		FetchFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scoresync_fetch_failures_total",
			Help: "Source pages abandoned after exhausting retries, by collection",
		}, []string{"collection"}),
		RowsWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scoresync_rows_written_total",
			Help: "Rows processed by the batch writer, by table and outcome",
		}, []string{"table", "outcome"}),
		StageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scoresync_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scoresync_runs_total",
			Help: "Completed pipeline runs, by result",
		}, []string{"result"}),
		RecordsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scoresync_records_skipped_total",
			Help: "Source records skipped before writing, by reason",
		}, []string{"reason"}),
	}
}

// ObserveStage records one stage's duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
