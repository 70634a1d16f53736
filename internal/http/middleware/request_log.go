package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/platform/logger"
)

func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return "unmatched"
}

// RequestLogger writes one access line per request. 5xx log at error, 4xx at
// warn. user_id is hashed by the logger.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "AccessLog")
	return func(c *gin.Context) {
		began := time.Now()
		c.Next()

		status := c.Writer.Status()
		kv := append([]interface{}{
			"method", c.Request.Method,
			"route", routeOf(c),
			"status", status,
			"duration_ms", time.Since(began).Milliseconds(),
		}, ctxutil.LogFields(c.Request.Context())...)
		if uid := ctxutil.UserID(c.Request.Context()); uid != uuid.Nil {
			kv = append(kv, "user_id", uid.String())
		}
		if last := c.Errors.Last(); last != nil {
			kv = append(kv, "error", last.Error())
		}

		logAt := log.Info
		if status >= 500 {
			logAt = log.Error
		} else if status >= 400 {
			logAt = log.Warn
		}
		logAt("HTTP request", kv...)
	}
}
