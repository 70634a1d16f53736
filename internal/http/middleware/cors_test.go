package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func preflight(t *testing.T, h gin.HandlerFunc, origin string) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.Use(h)
	r.POST("/api/tools/:tool", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/api/tools/rewrite", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name    string
		origins []string
		origin  string
		allowed bool
	}{
		{"dev default", nil, "http://localhost:5173", true},
		{"dev loopback", nil, "http://127.0.0.1:3000", true},
		{"configured", []string{"https://app.inkwell.dev"}, "https://app.inkwell.dev", true},
		{"configured replaces dev", []string{"https://app.inkwell.dev"}, "http://localhost:5173", false},
		{"unknown", nil, "https://evil.example", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := preflight(t, CORS(tc.origins), tc.origin)
			got := w.Header().Get("Access-Control-Allow-Origin")
			if tc.allowed && got != tc.origin {
				t.Fatalf("allow-origin = %q, want %q", got, tc.origin)
			}
			if !tc.allowed && got != "" {
				t.Fatalf("origin %q should be rejected, got allow-origin %q", tc.origin, got)
			}
		})
	}
}

func TestCORSExposesQuotaHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(nil))
	r.GET("/api/usage", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	exposed := w.Header().Get("Access-Control-Expose-Headers")
	for _, h := range quotaHeaders {
		if !containsFold(exposed, h) {
			t.Fatalf("expose headers %q missing %s", exposed, h)
		}
	}
}

func containsFold(list, h string) bool {
	return strings.Contains(strings.ToLower(list), strings.ToLower(h))
}
