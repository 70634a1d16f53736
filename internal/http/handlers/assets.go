package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type AssetHandler struct {
	assets services.AssetService
}

func NewAssetHandler(assets services.AssetService) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// GET /api/projects/:id/assets?limit=
func (h *AssetHandler) ListProject(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	list, err := h.assets.ListProjectAssets(c.Request.Context(), id, callerID(c), queryInt(c, "limit", 0))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assets": list})
}

// POST /api/assets/:id/share
// body: { "project_id": "..." }
func (h *AssetHandler) Share(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		ProjectID uuid.UUID `json:"project_id"`
	}
	if !bindJSON(c, &req) {
		return
	}
	asset, err := h.assets.Share(c.Request.Context(), id, req.ProjectID, callerID(c))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"asset": asset})
}

// DELETE /api/assets/:id
func (h *AssetHandler) Delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.assets.Delete(c.Request.Context(), id, callerID(c)); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}
