package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/inkwell-backend/internal/domain/content"
	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/services"
)

const (
	HeaderQuotaDailyLimit       = "X-Quota-Daily-Limit"
	HeaderQuotaDailyRemaining   = "X-Quota-Daily-Remaining"
	HeaderQuotaMonthlyLimit     = "X-Quota-Monthly-Limit"
	HeaderQuotaMonthlyRemaining = "X-Quota-Monthly-Remaining"

	usageKey      = "quota_usage"
	consumedAtKey = "quota_consumed_at"
)

var quotaHeaders = []string{
	HeaderQuotaDailyLimit,
	HeaderQuotaDailyRemaining,
	HeaderQuotaMonthlyLimit,
	HeaderQuotaMonthlyRemaining,
}

// RequireQuota takes one unit of the caller's quota for the tool named by the
// route parameter toolParam. Unlimited windows report -1.
func RequireQuota(usage services.UsageService, toolParam string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tool := c.Param(toolParam)
		if !content.IsKnownTool(tool) {
			response.AbortAPIError(c, apierr.NotFound("tool "+tool))
			return
		}
		ctx := c.Request.Context()
		u, err := usage.CheckAndConsume(ctx, ctxutil.UserID(ctx), tool)
		if u != nil {
			SetQuotaHeaders(c, u)
		}
		if err != nil {
			response.AbortAPIError(c, err)
			return
		}
		c.Set(usageKey, u)
		// Any instant inside the consumed day names the windows to release.
		c.Set(consumedAtKey, u.DailyResetsAt.Add(-time.Second))
		c.Next()
	}
}

func SetQuotaHeaders(c *gin.Context, u *services.Usage) {
	c.Header(HeaderQuotaDailyLimit, strconv.Itoa(u.DailyLimit))
	c.Header(HeaderQuotaDailyRemaining, strconv.Itoa(u.DailyRemaining()))
	c.Header(HeaderQuotaMonthlyLimit, strconv.Itoa(u.MonthlyLimit))
	c.Header(HeaderQuotaMonthlyRemaining, strconv.Itoa(u.MonthlyRemaining()))
}

// QuotaUsage returns the usage stashed by RequireQuota, or nil.
func QuotaUsage(c *gin.Context) *services.Usage {
	if v, ok := c.Get(usageKey); ok {
		u, _ := v.(*services.Usage)
		return u
	}
	return nil
}

// QuotaConsumedAt is zero when RequireQuota did not run.
func QuotaConsumedAt(c *gin.Context) time.Time {
	if v, ok := c.Get(consumedAtKey); ok {
		t, _ := v.(time.Time)
		return t
	}
	return time.Time{}
}
