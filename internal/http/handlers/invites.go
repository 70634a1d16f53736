package handlers

import (
	"github.com/gin-gonic/gin"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type InviteHandler struct {
	invites services.InviteService
}

func NewInviteHandler(invites services.InviteService) *InviteHandler {
	return &InviteHandler{invites: invites}
}

// POST /api/projects/:id/invites
// body: { "email": "...", "role": "viewer" }
func (h *InviteHandler) Create(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Email string     `json:"email"`
		Role  types.Role `json:"role"`
	}
	if !bindJSON(c, &req) {
		return
	}
	inv, err := h.invites.Create(c.Request.Context(), id, callerID(c), req.Email, req.Role)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"invite": inv})
}

// GET /api/projects/:id/invites
func (h *InviteHandler) ListByProject(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	list, err := h.invites.ListByProject(c.Request.Context(), id, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"invites": list})
}

// DELETE /api/projects/:id/invites/:inviteId
func (h *InviteHandler) Revoke(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	inviteID, ok := uuidParam(c, "inviteId")
	if !ok {
		return
	}
	if err := h.invites.Revoke(c.Request.Context(), id, callerID(c), inviteID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// GET /api/invites
func (h *InviteHandler) ListMine(c *gin.Context) {
	list, err := h.invites.ListMine(c.Request.Context(), callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"invites": list})
}

// POST /api/invites/claim
// body: { "token": "..." }
func (h *InviteHandler) Claim(c *gin.Context) {
	var req struct {
		Token string `json:"token"`
	}
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.invites.Claim(c.Request.Context(), req.Token, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}
