package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
	"github.com/yungbote/inkwell-backend/internal/realtime"
	"github.com/yungbote/inkwell-backend/internal/services"
)

var errNoStream = errors.New("no active SSE connection for this session")

type RealtimeHandler struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	projects services.ProjectService

	mu      sync.RWMutex
	clients map[uuid.UUID]*realtime.SSEClient // key: SessionID (UserToken.ID)
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, projects services.ProjectService) *RealtimeHandler {
	return &RealtimeHandler{
		log:      log.With("handler", "RealtimeHandler"),
		hub:      hub,
		projects: projects,
		clients:  make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/sse/stream
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil || rd.SessionID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return
	}
	sessionID := rd.SessionID

	h.mu.Lock()
	// A session has at most one stream; a reconnect replaces the old one.
	if existing, ok := h.clients[sessionID]; ok {
		h.hub.CloseClient(existing)
	}
	client := h.hub.NewSSEClient(rd.UserID)
	h.clients[sessionID] = client
	h.mu.Unlock()

	h.hub.AddChannel(client, realtime.UserChannel(rd.UserID))
	h.log.Debug("SSE stream open", "user_id", rd.UserID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	if h.clients[sessionID] == client {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.hub.CloseClient(client)
}

func (h *RealtimeHandler) sessionClient(c *gin.Context) (*realtime.SSEClient, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.SessionID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing session id"))
		return nil, false
	}
	h.mu.RLock()
	client, ok := h.clients[rd.SessionID]
	h.mu.RUnlock()
	if !ok {
		response.RespondError(c, http.StatusConflict, "no_stream", errNoStream)
		return nil, false
	}
	return client, true
}

// POST /api/sse/subscribe
// body: { "project_id": "..." }
func (h *RealtimeHandler) SSESubscribe(c *gin.Context) {
	var req struct {
		ProjectID uuid.UUID `json:"project_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if _, _, err := h.projects.Authorize(c.Request.Context(), req.ProjectID, callerID(c), types.RoleViewer); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	client, ok := h.sessionClient(c)
	if !ok {
		return
	}
	channel := realtime.ProjectChannel(req.ProjectID)
	h.hub.AddChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "subscribed", "channel": channel})
}

// POST /api/sse/unsubscribe
// body: { "project_id": "..." }
func (h *RealtimeHandler) SSEUnsubscribe(c *gin.Context) {
	var req struct {
		ProjectID uuid.UUID `json:"project_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	client, ok := h.sessionClient(c)
	if !ok {
		return
	}
	channel := realtime.ProjectChannel(req.ProjectID)
	h.hub.RemoveChannel(client, channel)
	response.RespondOK(c, gin.H{"message": "unsubscribed", "channel": channel})
}
