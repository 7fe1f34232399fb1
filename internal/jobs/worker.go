// Package jobs runs the background pipeline workers against the job_run
// queue. Claiming is database-side, so multiple processes can share the
// queue safely.
package jobs

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	jobrepos "github.com/recipenow/recipenow-backend/internal/data/repos"
	"github.com/recipenow/recipenow-backend/internal/jobs/runtime"
	"github.com/recipenow/recipenow-backend/internal/pkg/dbctx"
	"github.com/recipenow/recipenow-backend/internal/platform/logger"
	"github.com/recipenow/recipenow-backend/internal/services"
)

type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	StaleRunning time.Duration
}

func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Concurrency:  2,
		PollInterval: 1 * time.Second,
		MaxAttempts:  5,
		RetryDelay:   30 * time.Second,
		StaleRunning: 2 * time.Minute,
	}
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     jobrepos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      WorkerConfig
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo jobrepos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultWorkerConfig().Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultWorkerConfig().PollInterval
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg,
	}
}

// Start launches the worker pool and returns immediately. The pool drains
// when ctx is canceled; Wait on the returned group for a clean shutdown.
func (w *Worker) Start(ctx context.Context) *errgroup.Group {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			w.poll(gctx)
			return nil
		})
	}
	return g
}

func (w *Worker) poll(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOne(ctx)
		}
	}
}

func (w *Worker) runOne(ctx context.Context) {
	job, err := w.repo.ClaimNextRunnable(dbc(ctx), w.cfg.MaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "error", err)
		return
	}
	if job == nil {
		return
	}

	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)
	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("no handler registered", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", &missingHandlerError{JobType: job.JobType})
		return
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Error("job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
				jc.Fail("panic", &panicError{Val: r})
			}
		}()
		if err := h.Run(jc); err != nil {
			// Handlers normally report through jc.Fail; a returned error means
			// they bailed before reaching a stage boundary.
			jc.Fail(job.Stage, err)
		}
	}()
}

func dbc(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx}
}

type missingHandlerError struct{ JobType string }

func (e *missingHandlerError) Error() string {
	return "no handler registered for job_type=" + e.JobType
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return "panic: unexpected error" }
