// Package sync drives a full synchronization run: fetch each source
// collection in dependency order, reconcile identities, write through the
// batch writer, backfill reporting periods, and rebuild derived statistics.
//
// Stages run strictly in sequence and all writes for a table flow through a
// single writer instance, so cross-record invariants never need locking.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"scoresync/internal/domain"
	"scoresync/internal/identity"
	"scoresync/internal/platform/config"
	"scoresync/internal/platform/metrics"
	"scoresync/internal/source"
	"scoresync/internal/storage"
	"scoresync/internal/sync/checkpoint"
	"scoresync/internal/sync/report"
	id "scoresync/pkg/domain"
)

// Stores bundles every persistence dependency of a run.
type Stores struct {
	Institutions storage.InstitutionStore
	Persons      storage.PersonStore
	Advisors     storage.AdvisorStore
	Staff        storage.StaffStore
	Scores       storage.ScoreStore
	Responses    storage.ResponseStore
	Stats        storage.StatsStore
	Runs         storage.RunStore
}

// Pipeline executes synchronization runs.
type Pipeline struct {
	cfg        config.Sync
	client     source.Client
	stores     Stores
	checkpoint *checkpoint.Manager
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithCheckpoint enables the resumable cursor.
func WithCheckpoint(m *checkpoint.Manager) Option {
	return func(p *Pipeline) { p.checkpoint = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(cfg config.Sync, client source.Client, stores Stores, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		client: client,
		stores: stores,
		logger: slog.Default(),
		tracer: otel.Tracer("scoresync/sync"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runState carries the per-run working set between stages.
type runState struct {
	resolver     *identity.Resolver
	institutions map[string]domain.Institution
	policies     map[id.InstitutionID]bool
}

// Run executes one full synchronization run and always returns a report,
// also on failure.
func (p *Pipeline) Run(ctx context.Context, runID string) (*report.Report, error) {
	rep := &report.Report{
		RunID:     runID,
		StartedAt: p.now().UTC(),
	}
	defer func() { rep.FinishedAt = p.now().UTC() }()

	resolver := identity.NewResolver(p.stores.Persons, identity.WithLogger(p.logger))
	if err := resolver.Hydrate(ctx); err != nil {
		return p.finish(ctx, rep, fmt.Errorf("hydrate resolver: %w", err))
	}
	knownPersons, knownAliases := resolver.Known()
	p.logger.Info("resolver hydrated", "persons", knownPersons, "aliases", knownAliases)
	run := &runState{
		resolver:     resolver,
		institutions: make(map[string]domain.Institution),
		policies:     make(map[id.InstitutionID]bool),
	}

	if p.checkpoint != nil {
		resumed, err := p.checkpoint.Load()
		if err != nil {
			return p.finish(ctx, rep, err)
		}
		if resumed {
			rep.AddNote("resumed run started %s", p.checkpoint.RunStartedAt().Format(time.RFC3339))
		}
	}

	stages := []struct {
		name string
		fn   func(context.Context, *runState, *report.Report) error
	}{
		{"institutions", p.syncInstitutions},
		{"contacts", p.syncContacts},
		{"advisors", p.syncAdvisors},
		{"staff", p.syncStaff},
		{"responses", p.syncResponses},
		{"period_backfill", p.backfillPeriods},
		{"statistics", p.rebuildStatistics},
	}
	for _, stage := range stages {
		if err := p.runStage(ctx, stage.name, run, rep, stage.fn); err != nil {
			return p.finish(ctx, rep, fmt.Errorf("stage %s: %w", stage.name, err))
		}
		p.saveCheckpoint(rep)
	}
	return p.finish(ctx, rep, nil)
}

func (p *Pipeline) runStage(ctx context.Context, name string, run *runState, rep *report.Report, fn func(context.Context, *runState, *report.Report) error) error {
	ctx, span := p.tracer.Start(ctx, "sync."+name)
	defer span.End()

	start := p.now()
	p.logger.Info("stage started", "stage", name)
	err := fn(ctx, run, rep)
	elapsed := p.now().Sub(start)
	if p.metrics != nil {
		p.metrics.ObserveStage(name, elapsed)
	}
	if err != nil {
		span.RecordError(err)
		p.logger.Error("stage failed", "stage", name, "elapsed", elapsed, "error", err)
		return err
	}
	p.logger.Info("stage finished", "stage", name, "elapsed", elapsed)
	return nil
}

func (p *Pipeline) finish(ctx context.Context, rep *report.Report, err error) (*report.Report, error) {
	switch {
	case err == nil:
		rep.Result = report.ResultSuccess
		if p.checkpoint != nil {
			if cerr := p.checkpoint.Clear(); cerr != nil {
				p.logger.Warn("clearing checkpoint failed", "error", cerr)
			}
		}
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		rep.Result = report.ResultCanceled
		p.saveCheckpoint(rep)
	default:
		rep.Result = report.ResultFailed
		p.saveCheckpoint(rep)
	}
	if p.metrics != nil {
		p.metrics.RunsCompleted.WithLabelValues(rep.Result).Inc()
	}
	return rep, err
}

// saveCheckpoint is best effort; a cursor that fails to persist costs a
// refetch, not the run.
func (p *Pipeline) saveCheckpoint(rep *report.Report) {
	if p.checkpoint == nil {
		return
	}
	if err := p.checkpoint.Save(); err != nil {
		p.logger.Warn("saving checkpoint failed", "error", err)
		rep.AddNote("checkpoint save failed: %v", err)
	}
}

func (p *Pipeline) skip(reason string) {
	if p.metrics != nil {
		p.metrics.RecordsSkipped.WithLabelValues(reason).Inc()
	}
}
