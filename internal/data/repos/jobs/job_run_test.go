package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
)

func newJob(owner uuid.UUID, status string, created time.Time) *types.JobRun {
	entityID := uuid.New()
	return &types.JobRun{
		OwnerUserID: owner,
		JobType:     "tool_image_generate",
		EntityType:  "generation",
		EntityID:    &entityID,
		Status:      status,
		Stage:       status,
		Payload:     datatypes.JSON([]byte("{}")),
		Result:      datatypes.JSON([]byte("{}")),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestJobRunRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	owner := uuid.New()

	queued := newJob(owner, types.JobQueued, now.Add(-3*time.Hour))
	failed := newJob(owner, types.JobFailed, now.Add(-2*time.Hour))
	failed.LastErrorAt = ptrTime(now.Add(-2 * time.Hour))
	exhausted := newJob(owner, types.JobFailed, now.Add(-90*time.Minute))
	exhausted.Attempts = 3
	stale := newJob(owner, types.JobRunning, now.Add(-1*time.Hour))
	stale.HeartbeatAt = ptrTime(now.Add(-10 * time.Hour))
	fresh := newJob(owner, types.JobRunning, now.Add(-30*time.Minute))
	fresh.HeartbeatAt = ptrTime(now)

	if _, err := repo.Create(dbc, []*types.JobRun{queued, failed, exhausted, stale, fresh}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	policy := ClaimPolicy{MaxAttempts: 3, RetryDelay: 30 * time.Second, StaleAfter: time.Hour}
	want := []uuid.UUID{queued.ID, failed.ID, stale.ID}
	for i, id := range want {
		got, err := repo.ClaimNextRunnable(dbc, policy, now)
		if err != nil {
			t.Fatalf("claim #%d: %v", i+1, err)
		}
		if got == nil || got.ID != id {
			t.Fatalf("claim #%d: want=%v got=%v", i+1, id, got)
		}
		if got.Status != types.JobRunning || got.Attempts < 1 {
			t.Fatalf("claim #%d: not moved to running: %+v", i+1, got)
		}
	}
	if got, err := repo.ClaimNextRunnable(dbc, policy, now); err != nil || got != nil {
		t.Fatalf("claim after drain: got=%v err=%v", got, err)
	}
}

func TestJobRunRepoAbandonedRunningRows(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	owner := uuid.New()
	abandoned := newJob(owner, types.JobRunning, now.Add(-2*time.Hour))
	abandoned.Attempts = 3
	abandoned.HeartbeatAt = ptrTime(now.Add(-10 * time.Hour))
	alive := newJob(owner, types.JobRunning, now.Add(-time.Hour))
	alive.Attempts = 3
	alive.HeartbeatAt = ptrTime(now)
	if _, err := repo.Create(dbc, []*types.JobRun{abandoned, alive}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	policy := ClaimPolicy{MaxAttempts: 3, StaleAfter: time.Hour}
	if got, err := repo.ClaimNextRunnable(dbc, policy, now); err != nil || got != nil {
		t.Fatalf("exhausted stale row claimed: got=%v err=%v", got, err)
	}

	got, err := repo.FailNextAbandoned(dbc, policy, now, "heartbeat lost")
	if err != nil || got == nil || got.ID != abandoned.ID {
		t.Fatalf("FailNextAbandoned: got=%v err=%v", got, err)
	}
	row, _ := repo.GetByID(dbc, abandoned.ID)
	if row.Status != types.JobFailed || row.Error != "heartbeat lost" || row.LastErrorAt == nil {
		t.Fatalf("row: status=%s error=%q", row.Status, row.Error)
	}
	if got, err := repo.FailNextAbandoned(dbc, policy, now, "heartbeat lost"); err != nil || got != nil {
		t.Fatalf("second pass: got=%v err=%v", got, err)
	}
	if row, _ := repo.GetByID(dbc, alive.ID); row.Status != types.JobRunning {
		t.Fatalf("live row touched: %s", row.Status)
	}
}

func TestJobRunRepoClaimFiltersTypes(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	j := newJob(uuid.New(), types.JobQueued, time.Now().UTC())
	if _, err := repo.Create(dbc, []*types.JobRun{j}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.ClaimNextRunnable(dbc, ClaimPolicy{MaxAttempts: 3, JobTypes: []string{"tool_image_edit"}}, time.Now())
	if err != nil || got != nil {
		t.Fatalf("claim with other type: got=%v err=%v", got, err)
	}
}

func TestJobRunRepoUpdates(t *testing.T) {
	db := testutil.DB(t)
	dbc := dbctx.Context{Ctx: context.Background()}
	repo := NewJobRunRepo(db, testutil.Logger(t))

	j := newJob(uuid.New(), types.JobRunning, time.Now().UTC())
	if _, err := repo.Create(dbc, []*types.JobRun{j}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	exists, err := repo.ExistsRunnableForEntity(dbc, j.JobType, j.EntityType, *j.EntityID)
	if err != nil || !exists {
		t.Fatalf("ExistsRunnableForEntity: exists=%v err=%v", exists, err)
	}

	if err := repo.Heartbeat(dbc, j.ID, time.Now()); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if err := repo.UpdateFields(dbc, j.ID, map[string]interface{}{"status": types.JobSucceeded, "progress": 100}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	ok, err := repo.UpdateFieldsUnlessStatus(dbc, j.ID, []string{types.JobSucceeded}, map[string]interface{}{"status": types.JobFailed})
	if err != nil {
		t.Fatalf("UpdateFieldsUnlessStatus: %v", err)
	}
	if ok {
		t.Fatalf("terminal job should not be overwritten")
	}
	got, err := repo.GetByID(dbc, j.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v %v", got, err)
	}
	if got.Status != types.JobSucceeded || got.Progress != 100 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if exists, _ := repo.ExistsRunnableForEntity(dbc, j.JobType, j.EntityType, *j.EntityID); exists {
		t.Fatalf("succeeded job should not count as runnable")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
