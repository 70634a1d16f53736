package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	"github.com/yungbote/inkwell-backend/internal/jobs/runtime"
	"github.com/yungbote/inkwell-backend/internal/observability"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type Config struct {
	Concurrency       int
	PollInterval      time.Duration
	MaxAttempts       int
	RetryDelay        time.Duration
	StaleAfter        time.Duration
	HeartbeatInterval time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Concurrency:       envutil.Int("WORKER_CONCURRENCY", 4),
		PollInterval:      envutil.Duration("WORKER_POLL_INTERVAL", time.Second),
		MaxAttempts:       3,
		RetryDelay:        30 * time.Second,
		StaleAfter:        10 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	repo     repos.JobRunRepo
	registry *runtime.Registry
	notify   services.JobNotifier
	cfg      Config
	wg       sync.WaitGroup
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, registry *runtime.Registry, notify services.JobNotifier, cfg Config) *Worker {
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		repo:     repo,
		registry: registry,
		notify:   notify,
		cfg:      cfg.withDefaults(),
	}
}

// Start launches the pool; the loops exit when ctx is canceled. Wait blocks
// until they have.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "job_types", w.registry.Types())
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func(workerID int) {
			defer w.wg.Done()
			w.runLoop(ctx, workerID)
		}(i + 1)
	}
}

func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) policy() repos.ClaimPolicy {
	return repos.ClaimPolicy{
		MaxAttempts: w.cfg.MaxAttempts,
		RetryDelay:  w.cfg.RetryDelay,
		StaleAfter:  w.cfg.StaleAfter,
		JobTypes:    w.registry.Types(),
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain everything runnable before sleeping again.
			for ctx.Err() == nil && w.RunOnce(ctx) {
			}
		}
	}
}

var errAbandoned = errors.New("worker stopped heartbeating after the final attempt")

// RunOnce claims and runs at most one job. It reports whether a job was
// claimed or an abandoned one was failed.
func (w *Worker) RunOnce(ctx context.Context) bool {
	if w.failAbandoned(ctx) {
		return true
	}
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.policy(), time.Now().UTC())
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("ClaimNextRunnable failed", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify, w.cfg.MaxAttempts)
	start := time.Now()
	metrics := observability.Current()

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		metrics.ObserveJob(job.JobType, "failed", time.Since(start))
		return true
	}

	runErr := w.run(jc, h)
	if runErr != nil {
		w.log.Warn("Job failed", "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts, "error", runErr)
		jc.Fail("run", runErr)
		if jc.FinalAttempt() {
			if ff, ok := h.(runtime.FinalFailureHandler); ok {
				ff.OnFinalFailure(jc, runErr)
			}
		}
		metrics.ObserveJob(job.JobType, "failed", time.Since(start))
		return true
	}
	if !jc.Job.Terminal() {
		jc.Succeed("done", nil)
	}
	metrics.ObserveJob(job.JobType, "succeeded", time.Since(start))
	return true
}

// failAbandoned fails one running job whose worker died on its last
// attempt and gives the handler its final-failure cleanup.
func (w *Worker) failAbandoned(ctx context.Context) bool {
	job, err := w.repo.FailNextAbandoned(dbctx.Context{Ctx: ctx}, w.policy(), time.Now().UTC(), errAbandoned.Error())
	if err != nil {
		if ctx.Err() == nil {
			w.log.Warn("FailNextAbandoned failed", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}
	w.log.Warn("Abandoned job failed", "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	if w.notify != nil {
		w.notify.JobFailed(job.OwnerUserID, job, job.Stage, job.Error)
	}
	if h, ok := w.registry.Get(job.JobType); ok {
		if ff, ok := h.(runtime.FinalFailureHandler); ok {
			ff.OnFinalFailure(runtime.NewContext(ctx, w.db, job, w.repo, w.notify, w.cfg.MaxAttempts), errAbandoned)
		}
	}
	observability.Current().ObserveJob(job.JobType, "abandoned", time.Since(job.CreatedAt))
	return true
}

// run invokes the handler with a heartbeat running alongside and converts a
// panic into an error.
func (w *Worker) run(jc *runtime.Context, h runtime.Handler) (err error) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				jc.Heartbeat()
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic", "job_id", jc.Job.ID, "job_type", jc.Job.JobType, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Run(jc)
}
