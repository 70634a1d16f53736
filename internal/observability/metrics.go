package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/inkwell-backend/internal/platform/envutil"
)

const namespace = "inkwell"

// Metrics holds every collector the API and worker report. All methods are
// safe on a nil receiver so callers never need to check Enabled().
type Metrics struct {
	registry *prometheus.Registry

	httpInflight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	generations    *prometheus.CounterVec
	quotaDecisions *prometheus.CounterVec

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	webhookEvents *prometheus.CounterVec
	mailSends     *prometheus.CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

func Current() *Metrics { return instance }

// Init builds the process-wide collectors once. It returns nil when
// METRICS_ENABLED is off.
func Init() *Metrics {
	initOnce.Do(func() {
		if !Enabled() {
			return
		}
		instance = NewMetrics(prometheus.NewRegistry())
	})
	return instance
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		httpInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "inflight_requests",
			Help: "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"method", "route"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "tools", Name: "generations_total",
			Help: "Tool generations by tool and terminal status.",
		}, []string{"tool", "status"}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "quota", Name: "decisions_total",
			Help: "Quota checks by tool and outcome.",
		}, []string{"tool", "outcome"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "requests_total",
			Help: "Upstream model requests by model, path and status.",
		}, []string{"model", "path", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "llm", Name: "request_duration_seconds",
			Help:    "Upstream model request latency.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"model", "path"}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "llm", Name: "tokens_total",
			Help: "Tokens reported by the upstream model.",
		}, []string{"model", "direction"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "runs_total",
			Help: "Job executions by type and outcome.",
		}, []string{"job_type", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "jobs", Name: "run_duration_seconds",
			Help:    "Job execution latency.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job_type"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "billing", Name: "webhook_events_total",
			Help: "Payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		mailSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mail", Name: "sends_total",
			Help: "Transactional emails by template and outcome.",
		}, []string{"template", "outcome"}),
	}
	reg.MustRegister(
		m.httpInflight, m.httpRequests, m.httpLatency,
		m.generations, m.quotaDecisions,
		m.llmRequests, m.llmLatency, m.llmTokens,
		m.jobRuns, m.jobDuration,
		m.webhookEvents, m.mailSends,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry, or 404s when metrics are off.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPInflightInc() {
	if m != nil {
		m.httpInflight.Inc()
	}
}

func (m *Metrics) HTTPInflightDec() {
	if m != nil {
		m.httpInflight.Dec()
	}
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveGeneration(tool, status string) {
	if m != nil {
		m.generations.WithLabelValues(tool, status).Inc()
	}
}

func (m *Metrics) ObserveQuota(tool, outcome string) {
	if m != nil {
		m.quotaDecisions.WithLabelValues(tool, outcome).Inc()
	}
}

func (m *Metrics) ObserveLLMRequest(model, path, status string, d time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.llmRequests.WithLabelValues(model, path, status).Inc()
	m.llmLatency.WithLabelValues(model, path).Observe(d.Seconds())
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) ObserveJob(jobType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(jobType, status).Inc()
	m.jobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	if m != nil {
		m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
	}
}

func (m *Metrics) ObserveMail(template, outcome string) {
	if m != nil {
		m.mailSends.WithLabelValues(template, outcome).Inc()
	}
}
