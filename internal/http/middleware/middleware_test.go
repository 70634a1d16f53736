package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/inkwell-backend/internal/data/repos/testutil"
	"github.com/yungbote/inkwell-backend/internal/platform/apierr"
	"github.com/yungbote/inkwell-backend/internal/platform/ctxutil"
	"github.com/yungbote/inkwell-backend/internal/services"
)

type stubAuth struct {
	services.AuthService
	tokens map[string]*ctxutil.RequestData
}

func (s *stubAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	rd, ok := s.tokens[token]
	if !ok {
		return nil, apierr.Unauthorized("invalid token")
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}

type stubUsage struct {
	services.UsageService
	usage *services.Usage
	err   error
	calls int
}

func (s *stubUsage) CheckAndConsume(ctx context.Context, userID uuid.UUID, tool string) (*services.Usage, error) {
	s.calls++
	return s.usage, s.err
}

func init() { gin.SetMode(gin.TestMode) }

func serve(r *gin.Engine, method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRequireAuth(t *testing.T) {
	user := uuid.New()
	auth := &stubAuth{tokens: map[string]*ctxutil.RequestData{
		"good":  {UserID: user},
		"admin": {UserID: uuid.New(), IsAdmin: true},
	}}
	am := NewAuthMiddleware(testutil.Logger(t), auth)
	r := gin.New()
	r.GET("/me", am.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.UserID(c.Request.Context()).String())
	})
	r.GET("/admin", am.RequireAuth(), am.RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	cases := []struct {
		name   string
		target string
		header map[string]string
		status int
	}{
		{"missing", "/me", nil, http.StatusUnauthorized},
		{"bad token", "/me", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"bearer", "/me", map[string]string{"Authorization": "bearer good"}, http.StatusOK},
		{"query token", "/me?token=good", nil, http.StatusOK},
		{"admin denied", "/admin", map[string]string{"Authorization": "Bearer good"}, http.StatusForbidden},
		{"admin allowed", "/admin", map[string]string{"Authorization": "Bearer admin"}, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(r, http.MethodGet, tc.target, tc.header)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusOK && rec.Body.String() != user.String() {
				t.Fatalf("user = %s", rec.Body.String())
			}
		})
	}
}

func quotaRouter(usage services.UsageService) *gin.Engine {
	r := gin.New()
	r.POST("/tools/:tool", RequireQuota(usage, "tool"), func(c *gin.Context) {
		if QuotaUsage(c) == nil || QuotaConsumedAt(c).IsZero() {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, QuotaConsumedAt(c).Format("2006-01-02"))
	})
	return r
}

func TestRequireQuotaSetsHeaders(t *testing.T) {
	resets := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	usage := &stubUsage{usage: &services.Usage{DailyUsed: 3, DailyLimit: 5, MonthlyUsed: 3, MonthlyLimit: -1, DailyResetsAt: resets}}
	rec := serve(quotaRouter(usage), http.MethodPost, "/tools/article", nil)

	if rec.Code != http.StatusOK || rec.Body.String() != "2026-04-01" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	want := map[string]string{
		HeaderQuotaDailyLimit:       "5",
		HeaderQuotaDailyRemaining:   "2",
		HeaderQuotaMonthlyLimit:     "-1",
		HeaderQuotaMonthlyRemaining: "-1",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestRequireQuotaRejects(t *testing.T) {
	exhausted := &stubUsage{
		usage: &services.Usage{DailyUsed: 5, DailyLimit: 5, MonthlyLimit: 100},
		err:   apierr.Newf(http.StatusTooManyRequests, "quota_exceeded", "daily quota exhausted"),
	}
	rec := serve(quotaRouter(exhausted), http.MethodPost, "/tools/article", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get(HeaderQuotaDailyRemaining) != "0" {
		t.Fatalf("status=%d headers=%v", rec.Code, rec.Header())
	}

	upgrade := &stubUsage{err: apierr.Newf(http.StatusForbidden, "upgrade_required", "not in plan")}
	if rec := serve(quotaRouter(upgrade), http.MethodPost, "/tools/image", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("upgrade status=%d", rec.Code)
	}

	unknown := &stubUsage{err: errors.New("should not be called")}
	if rec := serve(quotaRouter(unknown), http.MethodPost, "/tools/nope", nil); rec.Code != http.StatusNotFound || unknown.calls != 0 {
		t.Fatalf("unknown tool status=%d calls=%d", rec.Code, unknown.calls)
	}
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	a, b := uuid.New(), uuid.New()

	if !rl.allow(a) || !rl.allow(a) {
		t.Fatalf("burst rejected")
	}
	if rl.allow(a) {
		t.Fatalf("third request allowed")
	}
	if !rl.allow(b) {
		t.Fatalf("other user limited")
	}
	now = now.Add(time.Second)
	if !rl.allow(a) {
		t.Fatalf("token not refilled")
	}

	now = now.Add(2 * limiterIdleTTL)
	rl.allow(b)
	if _, ok := rl.limiters[a]; ok {
		t.Fatalf("idle limiter kept")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	user := &ctxutil.RequestData{UserID: uuid.New()}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), user))
	}, rl.Middleware())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	if rec := serve(r, http.MethodGet, "/x", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("first = %d", rec.Code)
	}
	rec := serve(r, http.MethodGet, "/x", nil)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second = %d", rec.Code)
	}
}

func TestTraceContextEchoesIDs(t *testing.T) {
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		c.String(http.StatusOK, td.RequestID)
	})
	rec := serve(r, http.MethodGet, "/x", map[string]string{"X-Request-Id": "req-1"})
	if rec.Body.String() != "req-1" || rec.Header().Get("X-Request-Id") != "req-1" || rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("body=%s headers=%v", rec.Body.String(), rec.Header())
	}
}
