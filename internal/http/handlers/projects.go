package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/inkwell-backend/internal/domain"
	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type ProjectHandler struct {
	projects services.ProjectService
}

func NewProjectHandler(projects services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// GET /api/projects
func (h *ProjectHandler) List(c *gin.Context) {
	list, err := h.projects.List(c.Request.Context(), callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"projects": list})
}

// POST /api/projects
// body: { "name": "...", "description": "..." }
func (h *ProjectHandler) Create(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.projects.Create(c.Request.Context(), callerID(c), req.Name, req.Description)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"project": p})
}

// GET /api/projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.projects.Get(c.Request.Context(), id, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

// PATCH /api/projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.ProjectUpdate
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.projects.Update(c.Request.Context(), id, callerID(c), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"project": p})
}

// DELETE /api/projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.projects.Delete(c.Request.Context(), id, callerID(c)); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// GET /api/projects/:id/members
func (h *ProjectHandler) ListMembers(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	members, err := h.projects.ListMembers(c.Request.Context(), id, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"members": members})
}

// PATCH /api/projects/:id/members/:userId
// body: { "role": "editor" }
func (h *ProjectHandler) UpdateMemberRole(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	var req struct {
		Role types.Role `json:"role"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.projects.UpdateMemberRole(c.Request.Context(), id, callerID(c), target, req.Role); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// DELETE /api/projects/:id/members/:userId
func (h *ProjectHandler) RemoveMember(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	target, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	if err := h.projects.RemoveMember(c.Request.Context(), id, callerID(c), target); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/projects/:id/transfer
// body: { "user_id": "..." }
func (h *ProjectHandler) TransferOwnership(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		UserID uuid.UUID `json:"user_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.projects.TransferOwnership(c.Request.Context(), id, callerID(c), req.UserID); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
