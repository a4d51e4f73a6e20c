package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	sweepDurationBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60}
	bodySizeBuckets      = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds every Prometheus instrument the service exports.
type Metrics struct {
	// HTTP
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Lifecycle
	WorkflowsAppliedTotal   *prometheus.CounterVec
	StageTransitionsTotal   *prometheus.CounterVec
	SLAOperationsTotal      *prometheus.CounterVec
	SLAOverdue              prometheus.Gauge
	PendingTransitionsTotal *prometheus.CounterVec
	ProtocolsCompletedTotal *prometheus.CounterVec
	FormValidationsTotal    *prometheus.CounterVec
	EventPublishFailures    *prometheus.CounterVec

	// Sweep
	SweepRunsTotal *prometheus.CounterVec
	SweepDuration  prometheus.Histogram

	// Edge
	IdempotencyReplaysTotal  prometheus.Counter
	RateLimitRejectionsTotal prometheus.Counter
	CapabilityResolutions    prometheus.Counter

	// Definitions
	DefinitionReloadTotal *prometheus.CounterVec
	DefinitionsLoaded     prometheus.Gauge
}

// InitMetrics creates and registers every instrument on reg.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifecycle_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifecycle_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lifecycle_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		WorkflowsAppliedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_workflows_applied_total",
			Help: "Workflows instantiated on protocols.",
		}, []string{"module_type"}),
		StageTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_stage_transitions_total",
			Help: "Stage transitions by resulting status.",
		}, []string{"status"}),
		SLAOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_sla_operations_total",
			Help: "SLA operations by kind.",
		}, []string{"operation"}),
		SLAOverdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_sla_overdue",
			Help: "Open SLAs past their expected end date at the last sweep.",
		}),
		PendingTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_pending_transitions_total",
			Help: "Pending item transitions by resulting status.",
		}, []string{"status"}),
		ProtocolsCompletedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_protocols_completed_total",
			Help: "Protocols settled as completed, split by SLA outcome.",
		}, []string{"module_type", "on_time"}),
		FormValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_form_validations_total",
			Help: "Form submissions validated, by outcome.",
		}, []string{"valid"}),
		EventPublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_event_publish_failures_total",
			Help: "Events that could not be published after commit.",
		}, []string{"type"}),

		SweepRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_sweep_runs_total",
			Help: "Sweep runs by outcome.",
		}, []string{"status"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lifecycle_sweep_duration_seconds",
			Help:    "Sweep duration in seconds.",
			Buckets: sweepDurationBuckets,
		}),

		IdempotencyReplaysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_idempotency_replays_total",
			Help: "Responses replayed for a repeated idempotency key.",
		}),
		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_rate_limit_rejections_total",
			Help: "Requests rejected by the per-subject rate limiter.",
		}),
		CapabilityResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lifecycle_capability_resolutions_total",
			Help: "Capability sets resolved for requests.",
		}),

		DefinitionReloadTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_definition_reload_total",
			Help: "Workflow definition loads by outcome.",
		}, []string{"status"}),
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lifecycle_definitions_loaded",
			Help: "Number of workflow definitions in the registry.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		m.WorkflowsAppliedTotal,
		m.StageTransitionsTotal,
		m.SLAOperationsTotal,
		m.SLAOverdue,
		m.PendingTransitionsTotal,
		m.ProtocolsCompletedTotal,
		m.FormValidationsTotal,
		m.EventPublishFailures,
		m.SweepRunsTotal,
		m.SweepDuration,
		m.IdempotencyReplaysTotal,
		m.RateLimitRejectionsTotal,
		m.CapabilityResolutions,
		m.DefinitionReloadTotal,
		m.DefinitionsLoaded,
	)
	return m
}

// --- Recording helpers ---
// Every helper is safe on a nil *Metrics so engines built without metrics
// need no guards.

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordWorkflowApplied counts a workflow instantiation.
func (m *Metrics) RecordWorkflowApplied(moduleType string) {
	if m == nil {
		return
	}
	m.WorkflowsAppliedTotal.WithLabelValues(moduleType).Inc()
}

// RecordStageTransition counts a stage entering status.
func (m *Metrics) RecordStageTransition(status string) {
	if m == nil {
		return
	}
	m.StageTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordSLAOperation counts an SLA operation (create, pause, resume, ...).
func (m *Metrics) RecordSLAOperation(op string) {
	if m == nil {
		return
	}
	m.SLAOperationsTotal.WithLabelValues(op).Inc()
}

// SetSLAOverdue sets the overdue gauge.
func (m *Metrics) SetSLAOverdue(n int) {
	if m == nil {
		return
	}
	m.SLAOverdue.Set(float64(n))
}

// RecordPendingTransition counts a pending entering status.
func (m *Metrics) RecordPendingTransition(status string) {
	if m == nil {
		return
	}
	m.PendingTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordProtocolCompleted counts a settled protocol.
func (m *Metrics) RecordProtocolCompleted(moduleType string, onTime bool) {
	if m == nil {
		return
	}
	m.ProtocolsCompletedTotal.WithLabelValues(moduleType, strconv.FormatBool(onTime)).Inc()
}

// RecordFormValidation counts a form validation outcome.
func (m *Metrics) RecordFormValidation(valid bool) {
	if m == nil {
		return
	}
	m.FormValidationsTotal.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// RecordEventPublishFailure counts an event lost after commit.
func (m *Metrics) RecordEventPublishFailure(eventType string) {
	if m == nil {
		return
	}
	m.EventPublishFailures.WithLabelValues(eventType).Inc()
}

// RecordSweep records one sweep run.
func (m *Metrics) RecordSweep(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(status).Inc()
	m.SweepDuration.Observe(duration.Seconds())
}

// RecordIdempotencyReplay counts a replayed response.
func (m *Metrics) RecordIdempotencyReplay() {
	if m == nil {
		return
	}
	m.IdempotencyReplaysTotal.Inc()
}

// RecordRateLimitRejection counts a rejected request.
func (m *Metrics) RecordRateLimitRejection() {
	if m == nil {
		return
	}
	m.RateLimitRejectionsTotal.Inc()
}

// RecordCapabilityResolution counts a capability resolution.
func (m *Metrics) RecordCapabilityResolution() {
	if m == nil {
		return
	}
	m.CapabilityResolutions.Inc()
}

// RecordDefinitionReload records a definition load.
func (m *Metrics) RecordDefinitionReload(status string) {
	if m == nil {
		return
	}
	m.DefinitionReloadTotal.WithLabelValues(status).Inc()
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count int) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(float64(count))
}

// --- HTTP Middleware ---

// MetricsMiddleware records request metrics labelled with chi's route pattern
// rather than the raw path, which keeps label cardinality bounded.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}
		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start), reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves metrics from a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern, falling back to the raw path.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	pattern = strings.TrimSuffix(pattern, "/*")
	pattern = strings.ReplaceAll(pattern, "/*/", "/")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *statusRecorder) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.written = true
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
