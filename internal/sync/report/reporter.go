// Package report renders and records the outcome of one sync run: a
// human-readable text artifact on disk and a structured row in the run
// history table.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scoresync/internal/storage"
)

// Run results as persisted in the run history.
const (
	ResultSuccess  = "success"
	ResultFailed   = "failed"
	ResultCanceled = "canceled"
)

// TableReport is one table's outcome for a run, bracketed by the wall-clock
// window of the stage that wrote it.
type TableReport struct {
	Table      string    `json:"table"`
	Before     int       `json:"before"`
	After      int       `json:"after"`
	New        int       `json:"new"`
	Updated    int       `json:"updated"`
	Protected  int       `json:"protected"`
	Rejected   int       `json:"rejected"`
	Skipped    int       `json:"skipped"`
	Errors     int       `json:"errors"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Report collects everything one run produced.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Result     string
	Tables     []TableReport
	Notes      []string
}

// AddTable appends one table's outcome.
func (r *Report) AddTable(t TableReport) {
	r.Tables = append(r.Tables, t)
}

// AddNote appends a free-form remark rendered at the end of the artifact.
func (r *Report) AddNote(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}

// Reporter publishes run reports.
type Reporter struct {
	dir    string
	runs   storage.RunStore
	logger *slog.Logger
}

// Option customizes a Reporter.
type Option func(*Reporter)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) { r.logger = logger }
}

// New builds a Reporter. An empty dir disables the text artifact; a nil runs
// store disables history persistence.
func New(dir string, runs storage.RunStore, opts ...Option) *Reporter {
	r := &Reporter{dir: dir, runs: runs, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish writes the artifact and the history row. Either sink failing is
// reported but does not mask the other.
func (r *Reporter) Publish(ctx context.Context, rep *Report) error {
	var errs []error

	if r.dir != "" {
		if path, err := r.writeArtifact(rep); err != nil {
			errs = append(errs, err)
		} else {
			r.logger.Info("run report written", "path", path)
		}
	}

	if r.runs != nil {
		if err := r.appendHistory(ctx, rep); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("publish report: %v", errs)
	}
	return nil
}

func (r *Reporter) writeArtifact(rep *Report) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(r.dir, fmt.Sprintf("sync-report-%s.txt", rep.RunID))
	if err := os.WriteFile(path, []byte(Render(rep)), 0o644); err != nil {
		return "", fmt.Errorf("write report artifact: %w", err)
	}
	return path, nil
}

func (r *Reporter) appendHistory(ctx context.Context, rep *Report) error {
	tables, err := json.Marshal(rep.Tables)
	if err != nil {
		return fmt.Errorf("marshal table reports: %w", err)
	}
	record := &storage.RunRecord{
		RunID:      rep.RunID,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Result:     rep.Result,
		Summary:    Summary(rep),
		Tables:     string(tables),
	}
	if err := r.runs.Append(ctx, record); err != nil {
		return fmt.Errorf("append run history: %w", err)
	}
	return nil
}

// Summary folds the per-table counters into one line for the history row.
func Summary(rep *Report) string {
	var total TableReport
	for _, t := range rep.Tables {
		total.New += t.New
		total.Updated += t.Updated
		total.Protected += t.Protected
		total.Rejected += t.Rejected
		total.Skipped += t.Skipped
		total.Errors += t.Errors
	}
	return fmt.Sprintf("tables=%d new=%d updated=%d protected=%d rejected=%d skipped=%d errors=%d",
		len(rep.Tables), total.New, total.Updated, total.Protected, total.Rejected, total.Skipped, total.Errors)
}

// Render produces the text artifact.
func Render(rep *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "sync run %s\n", rep.RunID)
	fmt.Fprintf(&b, "started:  %s\n", rep.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "finished: %s\n", rep.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "elapsed:  %s\n", rep.FinishedAt.Sub(rep.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(&b, "result:   %s\n\n", rep.Result)

	fmt.Fprintf(&b, "%-22s %8s %8s %7s %8s %10s %9s %8s %7s\n",
		"table", "before", "after", "new", "updated", "protected", "rejected", "skipped", "errors")
	for _, t := range rep.Tables {
		fmt.Fprintf(&b, "%-22s %8d %8d %7d %8d %10d %9d %8d %7d\n",
			t.Table, t.Before, t.After, t.New, t.Updated, t.Protected, t.Rejected, t.Skipped, t.Errors)
	}

	fmt.Fprintf(&b, "\n%s\n", Summary(rep))
	for _, note := range rep.Notes {
		fmt.Fprintf(&b, "note: %s\n", note)
	}
	return b.String()
}
