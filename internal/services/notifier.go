package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/realtime"
	"github.com/yungbote/inkwell-backend/internal/realtime/bus"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Hub == nil {
		return
	}
	e.Hub.Broadcast(msg)
}

// RedisEmitter publishes through the bus; every instance's forwarder then
// broadcasts into its local hub.
type RedisEmitter struct {
	Bus bus.Bus
	Log *logger.Logger
}

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(ctx, msg); err != nil && e.Log != nil {
		e.Log.Warn("SSE publish failed", "event", msg.Event, "error", err)
	}
}

type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.JobRun)
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.JobRun)
}

type jobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) JobNotifier {
	return &jobNotifier{emit: emit}
}

func (n *jobNotifier) send(userID uuid.UUID, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.UserChannel(userID),
		Event:   event,
		Data:    data,
	})
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.JobRun) {
	n.send(userID, realtime.SSEEventJobCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	n.send(userID, realtime.SSEEventJobProgress, map[string]any{
		"job_id":   jobID(job),
		"job_type": jobType(job),
		"stage":    stage,
		"progress": progress,
		"message":  message,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	n.send(userID, realtime.SSEEventJobFailed, map[string]any{
		"job_id":   jobID(job),
		"job_type": jobType(job),
		"stage":    stage,
		"error":    errorMessage,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.JobRun) {
	n.send(userID, realtime.SSEEventJobDone, map[string]any{
		"job_id":   jobID(job),
		"job_type": jobType(job),
		"job":      job,
	})
}

func jobID(job *types.JobRun) uuid.UUID {
	if job == nil {
		return uuid.Nil
	}
	return job.ID
}

func jobType(job *types.JobRun) string {
	if job == nil {
		return ""
	}
	return job.JobType
}

// EventNotifier carries project and billing events.
type EventNotifier interface {
	ProjectMemberJoined(projectID, userID uuid.UUID, role types.Role)
	ProjectMemberRemoved(projectID, userID uuid.UUID)
	ProjectAssetAdded(projectID uuid.UUID, asset *types.Asset)
	SubscriptionChanged(userID uuid.UUID, planKey, status string)
}

type eventNotifier struct {
	emit SSEEmitter
}

func NewEventNotifier(emit SSEEmitter) EventNotifier {
	return &eventNotifier{emit: emit}
}

func (n *eventNotifier) send(channel string, event realtime.SSEEvent, data map[string]any) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{Channel: channel, Event: event, Data: data})
}

func (n *eventNotifier) ProjectMemberJoined(projectID, userID uuid.UUID, role types.Role) {
	n.send(realtime.ProjectChannel(projectID), realtime.SSEEventProjectMemberJoined, map[string]any{
		"project_id": projectID,
		"user_id":    userID,
		"role":       role,
	})
}

func (n *eventNotifier) ProjectMemberRemoved(projectID, userID uuid.UUID) {
	data := map[string]any{"project_id": projectID, "user_id": userID}
	n.send(realtime.ProjectChannel(projectID), realtime.SSEEventProjectMemberRemoved, data)
	n.send(realtime.UserChannel(userID), realtime.SSEEventProjectMemberRemoved, data)
}

func (n *eventNotifier) ProjectAssetAdded(projectID uuid.UUID, asset *types.Asset) {
	n.send(realtime.ProjectChannel(projectID), realtime.SSEEventProjectAssetAdded, map[string]any{
		"project_id": projectID,
		"asset":      asset,
	})
}

func (n *eventNotifier) SubscriptionChanged(userID uuid.UUID, planKey, status string) {
	n.send(realtime.UserChannel(userID), realtime.SSEEventSubscriptionChanged, map[string]any{
		"plan":   planKey,
		"status": status,
	})
}
