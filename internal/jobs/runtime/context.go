package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/services"
)

/*
Context is the execution handle for one claimed job_run.
Handlers never write job_run directly; they report through Progress, Fail and
Succeed, which skip rows an operator has canceled in the meantime.
	- Ctx: cancellation for this run, carrying the enqueuing request's trace ids
	- Job: the claimed row (status running, attempts already incremented)
	- MaxAttempts: the retry budget the worker claims with
*/
type Context struct {
	Ctx         context.Context
	DB          *gorm.DB
	Job         *types.JobRun
	Repo        repos.JobRunRepo
	Notify      services.JobNotifier
	MaxAttempts int
	payload     map[string]any
}

var guardCanceled = []string{types.JobCanceled}

func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier, maxAttempts int) *Context {
	c := &Context{
		Ctx:         ctx,
		DB:          db,
		Job:         job,
		Repo:        repo,
		Notify:      notify,
		MaxAttempts: maxAttempts,
	}
	c.payload = map[string]any{}
	if job != nil && len(job.Payload) > 0 {
		_ = json.Unmarshal(job.Payload, &c.payload)
	}
	c.applyTraceData()
	return c
}

func (c *Context) applyTraceData() {
	if c.Ctx == nil {
		c.Ctx = context.Background()
	}
	traceID, _ := c.payload["trace_id"].(string)
	reqID, _ := c.payload["request_id"].(string)
	traceID, reqID = strings.TrimSpace(traceID), strings.TrimSpace(reqID)
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{TraceID: traceID, RequestID: reqID})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// DecodePayload unmarshals the raw job payload into dst.
func (c *Context) DecodePayload(dst any) error {
	if c.Job == nil || len(c.Job.Payload) == 0 {
		return fmt.Errorf("job has no payload")
	}
	if err := json.Unmarshal(c.Job.Payload, dst); err != nil {
		return fmt.Errorf("decode %s payload: %w", c.Job.JobType, err)
	}
	return nil
}

// FinalAttempt reports whether a failure now leaves the job failed for good.
func (c *Context) FinalAttempt() bool {
	if c.Job == nil || c.MaxAttempts <= 0 {
		return true
	}
	return c.Job.Attempts >= c.MaxAttempts
}

func (c *Context) write(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: context.WithoutCancel(c.Ctx)}, c.Job.ID, guardCanceled, updates)
	return err == nil && ok
}

// Heartbeat keeps a long step from being reclaimed as stale.
func (c *Context) Heartbeat() {
	if c.Repo == nil || c.Job == nil {
		return
	}
	_ = c.Repo.Heartbeat(dbctx.Context{Ctx: c.Ctx}, c.Job.ID, time.Now().UTC())
}

func (c *Context) Progress(stage string, pct int, msg string) {
	now := time.Now().UTC()
	if !c.write(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job == nil {
		return
	}
	c.Job.Stage, c.Job.Progress, c.Job.Message = stage, pct, msg
	c.Job.HeartbeatAt, c.Job.UpdatedAt = &now, now
	if c.Notify != nil {
		c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, stage, pct, msg)
	}
}

// Fail records err. The worker may claim the row again until FinalAttempt.
func (c *Context) Fail(stage string, err error) {
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if !c.write(map[string]interface{}{
		"status":        types.JobFailed,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}) {
		return
	}
	if c.Job == nil {
		return
	}
	c.Job.Status, c.Job.Stage, c.Job.Message, c.Job.Error = types.JobFailed, stage, "", msg
	c.Job.LastErrorAt, c.Job.LockedAt, c.Job.UpdatedAt = &now, nil, now
	if c.Notify != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}

func (c *Context) Succeed(finalStage string, result any) {
	now := time.Now().UTC()
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	if !c.write(map[string]interface{}{
		"status":       types.JobSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job == nil {
		return
	}
	c.Job.Status, c.Job.Stage, c.Job.Progress = types.JobSucceeded, finalStage, 100
	c.Job.Message, c.Job.Error, c.Job.Result = "", "", res
	c.Job.LockedAt, c.Job.HeartbeatAt, c.Job.UpdatedAt = nil, &now, now
	if c.Notify != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
}
