// Package writer buffers staged rows per table and applies them in bounded
// batches. It owns the two write-time invariants: natural-key dedup within a
// batch and the null-overwrite guard against erasing captured values with
// blanks. One writer instance per table per run, used from a single
// goroutine: serialization, not locking, is what keeps the guard's
// read-then-write race-free.
package writer

import (
	"context"
	"errors"
	"log/slog"

	"scoresync/internal/platform/metrics"
	"scoresync/internal/storage"
)

// Counters exposes the running outcome counts for one table.
type Counters struct {
	New       int
	Updated   int
	Protected int
	Rejected  int
	Errors    int
}

// Config describes how one table's rows are keyed, deduplicated, guarded,
// and written.
type Config[R any] struct {
	Table     string
	BatchSize int

	// Key returns the natural composite key for in-batch dedup.
	Key func(R) string

	// Resolve picks the surviving row when a batch stages the same key
	// twice. Nil means last writer wins.
	Resolve func(existing, incoming R) R

	// GuardEmpty reports whether the incoming row carries no guarded
	// values. Nil disables the null-overwrite guard for this table.
	GuardEmpty func(R) bool

	// GuardSet reports whether a stored row already holds a guarded value.
	GuardSet func(R) bool

	// Fetch reads the currently stored row for the incoming row's key.
	// Only called when GuardEmpty(incoming) is true.
	Fetch func(ctx context.Context, incoming R) (R, error)

	// Upsert writes one row by its composite key.
	Upsert func(ctx context.Context, row R) (inserted bool, err error)
}

// Writer accumulates rows and flushes them in batches.
type Writer[R any] struct {
	cfg      Config[R]
	buffer   []R
	index    map[string]int
	counters Counters
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option customizes a Writer.
type Option[R any] func(*Writer[R])

func WithLogger[R any](logger *slog.Logger) Option[R] {
	return func(w *Writer[R]) { w.logger = logger }
}

func WithMetrics[R any](m *metrics.Metrics) Option[R] {
	return func(w *Writer[R]) { w.metrics = m }
}

func New[R any](cfg Config[R], opts ...Option[R]) *Writer[R] {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	w := &Writer[R]{
		cfg:    cfg,
		index:  make(map[string]int),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stage buffers one row, deduplicating against rows already staged for the
// same key, and flushes when the batch bound is reached.
func (w *Writer[R]) Stage(ctx context.Context, row R) error {
	key := w.cfg.Key(row)
	if i, ok := w.index[key]; ok {
		if w.cfg.Resolve != nil {
			row = w.cfg.Resolve(w.buffer[i], row)
		}
		w.buffer[i] = row
		return nil
	}
	w.index[key] = len(w.buffer)
	w.buffer = append(w.buffer, row)
	if len(w.buffer) >= w.cfg.BatchSize {
		return w.Flush(ctx)
	}
	return nil
}

// Reject counts a row dropped before staging (constraint violation).
func (w *Writer[R]) Reject() {
	w.counters.Rejected++
	w.observe("rejected")
}

// Flush writes the buffered batch. A batch runs to completion once started;
// cancellation is only honored before the first row. Row-level failures are
// logged and counted, never fatal for the batch.
func (w *Writer[R]) Flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := w.buffer
	w.buffer = nil
	w.index = make(map[string]int)

	for _, row := range batch {
		w.apply(ctx, row)
	}
	return nil
}

// Counters returns the running outcome counts.
func (w *Writer[R]) Counters() Counters {
	return w.counters
}

func (w *Writer[R]) apply(ctx context.Context, row R) {
	if w.cfg.GuardEmpty != nil && w.cfg.GuardEmpty(row) {
		stored, err := w.cfg.Fetch(ctx, row)
		switch {
		case err == nil:
			if w.cfg.GuardSet(stored) {
				w.counters.Protected++
				w.observe("protected")
				return
			}
		case errors.Is(err, storage.ErrNotFound):
			// No stored row; the blank row is still the first capture.
		default:
			w.counters.Errors++
			w.observe("error")
			w.logger.Error("guard read failed", "table", w.cfg.Table, "error", err)
			return
		}
	}

	inserted, err := w.cfg.Upsert(ctx, row)
	if err != nil {
		w.counters.Errors++
		w.observe("error")
		w.logger.Error("upsert failed", "table", w.cfg.Table, "error", err)
		return
	}
	if inserted {
		w.counters.New++
		w.observe("new")
	} else {
		w.counters.Updated++
		w.observe("updated")
	}
}

func (w *Writer[R]) observe(outcome string) {
	if w.metrics != nil {
		w.metrics.RowsWritten.WithLabelValues(w.cfg.Table, outcome).Inc()
	}
}
