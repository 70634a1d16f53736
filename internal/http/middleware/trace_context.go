package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// incomingTraceID prefers the caller's header, then an active otel span.
func incomingTraceID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(headerTraceID)); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

func orNewID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// AttachTraceContext stores trace and request ids on the request context and
// echoes them in the response headers.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		td := &ctxutil.TraceData{
			TraceID:   orNewID(incomingTraceID(c)),
			RequestID: orNewID(strings.TrimSpace(c.GetHeader(headerRequestID))),
		}
		c.Request = c.Request.WithContext(ctxutil.WithTraceData(c.Request.Context(), td))
		h := c.Writer.Header()
		h.Set(headerTraceID, td.TraceID)
		h.Set(headerRequestID, td.RequestID)
		c.Next()
	}
}
