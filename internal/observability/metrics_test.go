package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.HTTPInflightInc()
	m.ObserveHTTP("GET", "/x", "200", time.Millisecond)
	m.ObserveGeneration("article", "succeeded")
	m.ObserveQuota("image", "denied")
	m.ObserveLLMRequest("", "/v1/responses", "200", time.Second, 10, 20)
	m.ObserveJob("tool_image_generate", "succeeded", time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("nil handler status: got=%d", rec.Code)
	}
}

func TestMetricsExposeRecordedSeries(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveQuota("article", "allowed")
	m.ObserveGeneration("image", "failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`inkwell_quota_decisions_total{outcome="allowed",tool="article"} 1`,
		`inkwell_tools_generations_total{status="failed",tool="image"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing series %q", want)
		}
	}
}
