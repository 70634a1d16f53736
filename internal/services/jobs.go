package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/inkwell-backend/internal/data/repos"
	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/dbctx"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

const (
	JobTypeImageGenerate = "tool_image_generate"
	JobTypeImageEdit     = "tool_image_edit"

	JobEntityGeneration = "generation"
)

type JobService interface {
	// Enqueue inserts a queued job_run. Inside a transaction the JobCreated
	// event is the caller's to send after commit.
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error)
	Get(ctx context.Context, jobID, userID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, notify JobNotifier) JobService {
	return &jobService{
		db:     db,
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType, entityType string, entityID *uuid.UUID, payload map[string]any) (*types.JobRun, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner_user_id")
	}
	if jobType == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if _, ok := payload["trace_id"]; !ok && td.TraceID != "" {
			payload["trace_id"] = td.TraceID
		}
		if _, ok := payload["request_id"]; !ok && td.RequestID != "" {
			payload["request_id"] = td.RequestID
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      types.JobQueued,
		Stage:       "queued",
		Message:     "Queued",
		Payload:     datatypes.JSON(raw),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.repo.Create(dbc, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if dbc.Tx == nil {
		s.notify.JobCreated(ownerUserID, job)
	}
	return job, nil
}

func (s *jobService) Get(ctx context.Context, jobID, userID uuid.UUID) (*types.JobRun, error) {
	job, err := s.repo.GetByID(dbctx.Context{Ctx: ctx}, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job == nil || job.OwnerUserID != userID {
		return nil, apierr.NotFound("job")
	}
	return job, nil
}
