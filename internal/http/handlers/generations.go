package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type GenerationHandler struct {
	generations services.GenerationService
}

func NewGenerationHandler(generations services.GenerationService) *GenerationHandler {
	return &GenerationHandler{generations: generations}
}

// GET /api/generations?tool=&cursor=&limit=
func (h *GenerationHandler) List(c *gin.Context) {
	page, err := h.generations.List(c.Request.Context(), callerID(c), c.Query("tool"), c.Query("cursor"), queryInt(c, "limit", 0))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/generations/published?cursor=&limit=
func (h *GenerationHandler) Published(c *gin.Context) {
	page, err := h.generations.Published(c.Request.Context(), c.Query("cursor"), queryInt(c, "limit", 0))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// GET /api/generations/:id
func (h *GenerationHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	gen, err := h.generations.Get(c.Request.Context(), id, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"generation": gen})
}

// DELETE /api/generations/:id
func (h *GenerationHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.generations.Delete(c.Request.Context(), id, callerID(c)); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
