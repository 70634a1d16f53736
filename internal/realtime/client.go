package realtime

import (
	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

// SSEClient is one open event stream. Channels is guarded by the hub lock.
type SSEClient struct {
	ID       uuid.UUID
	UserID   uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}

func UserChannel(userID uuid.UUID) string { return "user:" + userID.String() }

func ProjectChannel(projectID uuid.UUID) string { return "project:" + projectID.String() }
