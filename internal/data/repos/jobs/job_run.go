package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// ClaimPolicy decides which rows are runnable: queued rows, plus failed rows
// whose last error is older than RetryDelay and running rows whose heartbeat
// is older than StaleAfter, both only while attempts remain.
type ClaimPolicy struct {
	MaxAttempts int
	RetryDelay  time.Duration
	StaleAfter  time.Duration
	JobTypes    []string
}

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.JobRun, error)
	ClaimNextRunnable(dbc dbctx.Context, policy ClaimPolicy, now time.Time) (*types.JobRun, error)
	FailNextAbandoned(dbc dbctx.Context, policy ClaimPolicy, now time.Time, reason string) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID, now time.Time) error
	ExistsRunnableForEntity(dbc dbctx.Context, jobType, entityType string, entityID uuid.UUID) (bool, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) dbx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return r.db
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.JobRun, error) {
	var out []*types.JobRun
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.dbx(dbc).WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// ClaimNextRunnable locks the oldest runnable row (SKIP LOCKED on Postgres),
// moves it to running and bumps its attempt counter.
func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, policy ClaimPolicy, now time.Time) (*types.JobRun, error) {
	now = now.UTC()
	retryCutoff := now.Add(-policy.RetryDelay)
	staleCutoff := now.Add(-policy.StaleAfter)
	var claimed *types.JobRun
	err := r.dbx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`(
          status = ?
          OR (status = ? AND attempts < ? AND (last_error_at IS NULL OR last_error_at < ?))
          OR (status = ? AND attempts < ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?)
        )`,
				types.JobQueued,
				types.JobFailed, policy.MaxAttempts, retryCutoff,
				types.JobRunning, policy.MaxAttempts, staleCutoff,
			)
		if len(policy.JobTypes) > 0 {
			q = q.Where("job_type IN ?", policy.JobTypes)
		}
		qErr := q.Order("created_at ASC").First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		if err := txx.Model(&types.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		job.Status = types.JobRunning
		job.Attempts++
		job.LockedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// FailNextAbandoned moves one stale running row that has used up its
// attempts to failed and returns it, or nil when there is none. Such rows
// are never claimed again, so this is their only way out of running.
func (r *jobRunRepo) FailNextAbandoned(dbc dbctx.Context, policy ClaimPolicy, now time.Time, reason string) (*types.JobRun, error) {
	now = now.UTC()
	staleCutoff := now.Add(-policy.StaleAfter)
	var failed *types.JobRun
	err := r.dbx(dbc).WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var job types.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND attempts >= ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?",
				types.JobRunning, policy.MaxAttempts, staleCutoff,
			)
		if len(policy.JobTypes) > 0 {
			q = q.Where("job_type IN ?", policy.JobTypes)
		}
		qErr := q.Order("created_at ASC").First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		if err := txx.Model(&types.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":        types.JobFailed,
				"stage":         "abandoned",
				"message":       "",
				"error":         reason,
				"last_error_at": now,
				"locked_at":     nil,
				"updated_at":    now,
			}).Error; err != nil {
			return err
		}
		job.Status, job.Stage, job.Message, job.Error = types.JobFailed, "abandoned", "", reason
		job.LastErrorAt, job.LockedAt, job.UpdatedAt = &now, nil, now
		failed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return failed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	_, err := r.UpdateFieldsUnlessStatus(dbc, id, nil, updates)
	return err
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	q := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(disallowedStatuses) > 0 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID, now time.Time) error {
	if id == uuid.Nil {
		return nil
	}
	now = now.UTC()
	return r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("id = ? AND status = ?", id, types.JobRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *jobRunRepo) ExistsRunnableForEntity(dbc dbctx.Context, jobType, entityType string, entityID uuid.UUID) (bool, error) {
	if entityID == uuid.Nil || jobType == "" {
		return false, nil
	}
	var count int64
	err := r.dbx(dbc).WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("job_type = ? AND entity_type = ? AND entity_id = ? AND status IN ?",
			jobType, entityType, entityID, []string{types.JobQueued, types.JobRunning},
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
