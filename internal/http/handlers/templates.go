package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type TemplateHandler struct {
	templates services.TemplateService
}

func NewTemplateHandler(templates services.TemplateService) *TemplateHandler {
	return &TemplateHandler{templates: templates}
}

// GET /api/projects/:id/templates
func (h *TemplateHandler) List(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	list, err := h.templates.List(c.Request.Context(), id, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"templates": list})
}

// POST /api/projects/:id/templates
func (h *TemplateHandler) Create(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.TemplateInput
	if !bindJSON(c, &req) {
		return
	}
	tpl, err := h.templates.Create(c.Request.Context(), id, callerID(c), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"template": tpl})
}

// GET /api/templates/:id
func (h *TemplateHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	tpl, err := h.templates.Get(c.Request.Context(), id, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"template": tpl})
}

// PATCH /api/templates/:id
func (h *TemplateHandler) Update(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req services.TemplateUpdate
	if !bindJSON(c, &req) {
		return
	}
	tpl, err := h.templates.Update(c.Request.Context(), id, callerID(c), req)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"template": tpl})
}

// DELETE /api/templates/:id
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.templates.Delete(c.Request.Context(), id, callerID(c)); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/templates/:id/render
// body: { "vars": { "topic": "..." } }
func (h *TemplateHandler) Render(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Vars map[string]string `json:"vars"`
	}
	if !bindJSON(c, &req) {
		return
	}
	out, tpl, err := h.templates.Render(c.Request.Context(), id, callerID(c), req.Vars)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rendered": out, "tool": tpl.Tool})
}
