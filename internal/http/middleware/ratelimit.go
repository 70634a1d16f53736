package middleware

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yungbote/inkwell-backend/internal/http/response"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
)

const limiterIdleTTL = 10 * time.Minute

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-user token bucket for the tool endpoints.
type RateLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[uuid.UUID]*userLimiter
	lastGC   time.Time
	now      func() time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perSec:   rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[uuid.UUID]*userLimiter),
		now:      time.Now,
	}
}

func (rl *RateLimiter) allow(userID uuid.UUID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	if now.Sub(rl.lastGC) > limiterIdleTTL {
		for id, ul := range rl.limiters {
			if now.Sub(ul.lastSeen) > limiterIdleTTL {
				delete(rl.limiters, id)
			}
		}
		rl.lastGC = now
	}
	ul, ok := rl.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rl.perSec, rl.burst)}
		rl.limiters[userID] = ul
	}
	ul.lastSeen = now
	return ul.limiter.AllowN(now, 1)
}

// Middleware must run after RequireAuth; anonymous requests share one bucket.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(ctxutil.UserID(c.Request.Context())) {
			c.Header("Retry-After", "1")
			response.RespondError(c, http.StatusTooManyRequests, "rate_limited", errors.New("too many requests"))
			c.Abort()
			return
		}
		c.Next()
	}
}
