package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type AdminHandler struct {
	analytics services.AnalyticsService
	now       func() time.Time
}

func NewAdminHandler(analytics services.AnalyticsService) *AdminHandler {
	return &AdminHandler{analytics: analytics, now: func() time.Time { return time.Now().UTC() }}
}

// parseTime accepts RFC 3339 or a bare YYYY-MM-DD (UTC midnight).
func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 or YYYY-MM-DD: " + raw)
	}
	return t, nil
}

// GET /api/admin/overview?from=&to=
func (h *AdminHandler) Overview(c *gin.Context) {
	from, err := parseTime(c.Query("from"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_from", err)
		return
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_to", err)
		return
	}
	ov, err := h.analytics.Overview(c.Request.Context(), from, to)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"overview": ov})
}

// GET /api/admin/timeseries?days=
func (h *AdminHandler) Timeseries(c *gin.Context) {
	points, err := h.analytics.Timeseries(c.Request.Context(), queryInt(c, "days", 0))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"snapshots": points})
}

// GET /api/admin/users?q=&limit=&offset=
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, err := h.analytics.ListUsers(c.Request.Context(), c.Query("q"), queryInt(c, "limit", 0), queryInt(c, "offset", 0))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, page)
}

// PATCH /api/admin/users/:id/plan
// body: { "plan_key": "studio" }
func (h *AdminHandler) SetUserPlan(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		PlanKey string `json:"plan_key"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.analytics.SetUserPlan(c.Request.Context(), id, req.PlanKey); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true})
}

// POST /api/admin/snapshot
// body (optional): { "day": "YYYY-MM-DD" }; defaults to yesterday.
func (h *AdminHandler) Snapshot(c *gin.Context) {
	var req struct {
		Day string `json:"day"`
	}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	day, err := parseTime(req.Day)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_day", err)
		return
	}
	if day.IsZero() {
		day = h.now().Truncate(24*time.Hour).AddDate(0, 0, -1)
	}
	snap, err := h.analytics.Snapshot(c.Request.Context(), day)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"snapshot": snap})
}
