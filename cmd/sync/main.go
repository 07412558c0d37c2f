// Command sync executes one full synchronization run against the configured
// source and analytics store, then exits. Scheduling is external (cron or a
// workflow runner); the process itself stays single-shot so every run has a
// clean lifecycle and an unambiguous exit code.
//
// Exit codes: 0 success, 1 failed or canceled, 2 fatal bootstrap failure.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"scoresync/internal/events"
	"scoresync/internal/ops"
	"scoresync/internal/platform/config"
	"scoresync/internal/platform/httpserver"
	"scoresync/internal/platform/logger"
	"scoresync/internal/platform/metrics"
	"scoresync/internal/platform/postgres"
	"scoresync/internal/platform/redis"
	"scoresync/internal/runlock"
	"scoresync/internal/source"
	"scoresync/internal/storage"
	"scoresync/internal/sync"
	"scoresync/internal/sync/checkpoint"
	"scoresync/internal/sync/report"
	dErrors "scoresync/pkg/domain-errors"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		log.Error("analytics store unreachable", "error", err)
		return 2
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db); err != nil {
		log.Error("migration failed", "error", err)
		return 2
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis unreachable", "error", err)
		return 2
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, err := events.New(ctx, cfg.Kafka, events.WithLogger(log))
	if err != nil {
		// Run events are a convenience for downstream consumers, not part of
		// the sync contract.
		log.Warn("kafka unavailable, run events disabled", "error", err)
	}
	defer publisher.Close()

	stores := sync.Stores{
		Institutions: storage.NewPostgresInstitutionStore(db),
		Persons:      storage.NewPostgresPersonStore(db),
		Advisors:     storage.NewPostgresAdvisorStore(db),
		Staff:        storage.NewPostgresStaffStore(db),
		Scores:       storage.NewPostgresScoreStore(db),
		Responses:    storage.NewPostgresResponseStore(db),
		Stats:        storage.NewPostgresStatsStore(db),
		Runs:         storage.NewPostgresRunStore(db),
	}

	srv := httpserver.New(cfg.Ops.Addr, ops.New(db, redisClient, stores.Runs, log).Router())
	go func() {
		log.Info("ops server listening", "addr", cfg.Ops.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	runID := uuid.NewString()
	log = log.With("run_id", runID)

	var lockClient runlock.Cmdable
	if redisClient != nil {
		lockClient = redisClient.Client
	}
	lock := runlock.New(lockClient, cfg.Redis.LockTTL)
	if err := lock.Acquire(ctx, runID); err != nil {
		log.Error("run not started", "error", err)
		return 1
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx, runID); err != nil {
			log.Warn("releasing run lock failed", "error", err)
		}
	}()

	client := source.NewHTTPClient(cfg.Source, source.WithLogger(log), source.WithMetrics(m))
	pipeline := sync.New(cfg.Sync, client, stores,
		sync.WithLogger(log),
		sync.WithMetrics(m),
		sync.WithCheckpoint(checkpoint.New(cfg.Checkpoint.Path, checkpoint.WithLogger(log))),
	)

	log.Info("sync run starting")
	rep, runErr := pipeline.Run(ctx, runID)

	// Publish the outcome regardless of how the run ended; a failed run's
	// report is the primary debugging artifact.
	publishCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reporter := report.New(cfg.Report.Dir, stores.Runs, report.WithLogger(log))
	if err := reporter.Publish(publishCtx, rep); err != nil {
		log.Error("publishing run report failed", "error", err)
	}
	if err := publisher.PublishRun(publishCtx, events.RunEvent{
		RunID:      rep.RunID,
		Result:     rep.Result,
		StartedAt:  rep.StartedAt,
		FinishedAt: rep.FinishedAt,
		Summary:    report.Summary(rep),
	}); err != nil {
		log.Warn("publishing run event failed", "error", err)
	}

	if runErr != nil {
		log.Error("sync run did not complete", "result", rep.Result, "error", runErr)
		if dErrors.IsFatal(runErr) {
			return 2
		}
		return 1
	}
	log.Info("sync run complete", "summary", report.Summary(rep))
	return 0
}
