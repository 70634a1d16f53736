package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/jobs/runtime"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
)

type scriptedHandler struct {
	jobType string
	run     func(jc *runtime.Context) error
	calls   atomic.Int32
	final   atomic.Int32
}

func (h *scriptedHandler) Type() string { return h.jobType }

func (h *scriptedHandler) Run(jc *runtime.Context) error {
	h.calls.Add(1)
	return h.run(jc)
}

func (h *scriptedHandler) OnFinalFailure(jc *runtime.Context, err error) { h.final.Add(1) }

type fixture struct {
	db     *gorm.DB
	repo   repos.JobRunRepo
	worker *Worker
}

func newFixture(t *testing.T, h runtime.Handler, cfg Config) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewJobRunRepo(db, log)
	reg := runtime.NewRegistry()
	if h != nil {
		if err := reg.Register(h); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	return &fixture{db: db, repo: repo, worker: NewWorker(db, log, repo, reg, nil, cfg)}
}

func (f *fixture) enqueue(t *testing.T, jobType string) *types.JobRun {
	t.Helper()
	job := &types.JobRun{
		OwnerUserID: uuid.New(),
		JobType:     jobType,
		Status:      types.JobQueued,
		Stage:       "queued",
		Payload:     datatypes.JSON([]byte(`{"n":1}`)),
		Result:      datatypes.JSON([]byte(`{}`)),
	}
	if _, err := f.repo.Create(dbctx.Context{Ctx: context.Background()}, []*types.JobRun{job}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func (f *fixture) load(t *testing.T, id uuid.UUID) *types.JobRun {
	t.Helper()
	row, err := f.repo.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil || row == nil {
		t.Fatalf("GetByID: %+v %v", row, err)
	}
	return row
}

// backdateError makes a failed row eligible for retry immediately.
func (f *fixture) backdateError(t *testing.T, id uuid.UUID) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Hour)
	if err := f.db.Model(&types.JobRun{}).Where("id = ?", id).Update("last_error_at", past).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

func TestRunOnceSucceeds(t *testing.T) {
	h := &scriptedHandler{jobType: "echo", run: func(jc *runtime.Context) error {
		if jc.Payload()["n"] != float64(1) {
			return errors.New("payload not decoded")
		}
		jc.Progress("work", 50, "halfway")
		return nil
	}}
	f := newFixture(t, h, Config{MaxAttempts: 3})
	job := f.enqueue(t, "echo")

	if !f.worker.RunOnce(context.Background()) {
		t.Fatalf("expected a claimed job")
	}
	if f.worker.RunOnce(context.Background()) {
		t.Fatalf("queue should be empty")
	}
	row := f.load(t, job.ID)
	if row.Status != types.JobSucceeded || row.Progress != 100 || row.Attempts != 1 {
		t.Fatalf("row: status=%s progress=%d attempts=%d", row.Status, row.Progress, row.Attempts)
	}
}

func TestRunOnceRetriesUntilFinal(t *testing.T) {
	h := &scriptedHandler{jobType: "flaky", run: func(jc *runtime.Context) error { return errors.New("upstream 500") }}
	f := newFixture(t, h, Config{MaxAttempts: 2, RetryDelay: time.Minute})
	job := f.enqueue(t, "flaky")
	ctx := context.Background()

	f.worker.RunOnce(ctx)
	row := f.load(t, job.ID)
	if row.Status != types.JobFailed || row.Error != "upstream 500" || h.final.Load() != 0 {
		t.Fatalf("after first attempt: %+v final=%d", row, h.final.Load())
	}
	if f.worker.RunOnce(ctx) {
		t.Fatalf("retry claimed before its delay")
	}

	f.backdateError(t, job.ID)
	if !f.worker.RunOnce(ctx) {
		t.Fatalf("retry not claimed")
	}
	if h.calls.Load() != 2 || h.final.Load() != 1 {
		t.Fatalf("calls=%d final=%d", h.calls.Load(), h.final.Load())
	}

	f.backdateError(t, job.ID)
	if f.worker.RunOnce(ctx) {
		t.Fatalf("exhausted job claimed again")
	}
}

func TestRunOnceFailsAbandonedFinalAttempt(t *testing.T) {
	h := &scriptedHandler{jobType: "slow", run: func(jc *runtime.Context) error { return nil }}
	f := newFixture(t, h, Config{MaxAttempts: 2, StaleAfter: time.Minute})
	job := f.enqueue(t, "slow")
	ctx := context.Background()

	// A worker claimed the last attempt and died without heartbeating.
	lost := time.Now().UTC().Add(-time.Hour)
	if err := f.repo.UpdateFields(dbctx.Context{Ctx: ctx}, job.ID, map[string]interface{}{
		"status":       types.JobRunning,
		"attempts":     2,
		"heartbeat_at": lost,
		"locked_at":    lost,
	}); err != nil {
		t.Fatalf("simulate lost worker: %v", err)
	}

	if !f.worker.RunOnce(ctx) {
		t.Fatalf("abandoned job not handled")
	}
	if h.calls.Load() != 0 || h.final.Load() != 1 {
		t.Fatalf("calls=%d final=%d", h.calls.Load(), h.final.Load())
	}
	row := f.load(t, job.ID)
	if row.Status != types.JobFailed || row.Attempts != 2 || row.Error != errAbandoned.Error() {
		t.Fatalf("row: status=%s attempts=%d error=%q", row.Status, row.Attempts, row.Error)
	}
	if f.worker.RunOnce(ctx) {
		t.Fatalf("failed job picked up again")
	}
}

func TestRunOnceRecoversPanic(t *testing.T) {
	h := &scriptedHandler{jobType: "boom", run: func(jc *runtime.Context) error { panic("nil map") }}
	f := newFixture(t, h, Config{MaxAttempts: 1})
	job := f.enqueue(t, "boom")

	f.worker.RunOnce(context.Background())
	row := f.load(t, job.ID)
	if row.Status != types.JobFailed || row.Error != "panic: nil map" {
		t.Fatalf("row: status=%s error=%q", row.Status, row.Error)
	}
	if h.final.Load() != 1 {
		t.Fatalf("final failure hook not called")
	}
}

func TestRunOnceIgnoresUnregisteredTypes(t *testing.T) {
	h := &scriptedHandler{jobType: "known", run: func(jc *runtime.Context) error { return nil }}
	f := newFixture(t, h, Config{})
	other := f.enqueue(t, "unknown")

	if f.worker.RunOnce(context.Background()) {
		t.Fatalf("claimed a job with no handler")
	}
	if row := f.load(t, other.ID); row.Status != types.JobQueued {
		t.Fatalf("status = %s", row.Status)
	}
}

func TestCanceledJobStaysCanceled(t *testing.T) {
	f := (*fixture)(nil)
	h := &scriptedHandler{jobType: "cancel"}
	h.run = func(jc *runtime.Context) error {
		if err := f.repo.UpdateFields(dbctx.Context{Ctx: jc.Ctx}, jc.Job.ID, map[string]interface{}{"status": types.JobCanceled}); err != nil {
			return err
		}
		return nil
	}
	f = newFixture(t, h, Config{MaxAttempts: 3})
	job := f.enqueue(t, "cancel")

	f.worker.RunOnce(context.Background())
	if row := f.load(t, job.ID); row.Status != types.JobCanceled {
		t.Fatalf("status = %s", row.Status)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))

	h := &scriptedHandler{jobType: "tick", run: func(jc *runtime.Context) error { return nil }}
	f := newFixture(t, h, Config{Concurrency: 2, PollInterval: 10 * time.Millisecond, MaxAttempts: 3})
	job := f.enqueue(t, "tick")

	ctx, cancel := context.WithCancel(context.Background())
	f.worker.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for h.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	f.worker.Wait()

	if h.calls.Load() != 1 {
		t.Fatalf("calls = %d", h.calls.Load())
	}
	if row := f.load(t, job.ID); row.Status != types.JobSucceeded {
		t.Fatalf("status = %s", row.Status)
	}
}
