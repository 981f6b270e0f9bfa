// Package monitoring exposes Prometheus metrics for the assessment flow and the HTTP layer.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered on a private registry.
// All recording methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	started                *prometheus.CounterVec
	finalized              *prometheus.CounterVec
	draftSaveFailures      prometheus.Counter
	historyFailures        *prometheus.CounterVec
	recommendationFailures prometheus.Counter

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New builds and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellbeing_assessments_started_total",
			Help: "Assessments started, by whether a previous draft was overwritten.",
		}, []string{"overwrote"}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellbeing_assessments_finalized_total",
			Help: "Assessments finalized, by whether the result was appended to history.",
		}, []string{"persisted"}),
		draftSaveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wellbeing_draft_save_failures_total",
			Help: "Draft persistence failures (in-memory state kept).",
		}),
		historyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellbeing_history_failures_total",
			Help: "History repository failures by operation.",
		}, []string{"op"}),
		recommendationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wellbeing_recommendation_failures_total",
			Help: "Failed calls to the recommendation service.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.started, m.finalized, m.draftSaveFailures, m.historyFailures,
		m.recommendationFailures, m.requests, m.requestDuration,
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry is exposed for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) AssessmentStarted(overwrote bool) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(strconv.FormatBool(overwrote)).Inc()
}

func (m *Metrics) AssessmentFinalized(persisted bool) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(strconv.FormatBool(persisted)).Inc()
}

func (m *Metrics) DraftSaveFailed() {
	if m == nil {
		return
	}
	m.draftSaveFailures.Inc()
}

func (m *Metrics) HistoryFailed(op string) {
	if m == nil {
		return
	}
	m.historyFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) RecommendationFailed() {
	if m == nil {
		return
	}
	m.recommendationFailures.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency. route maps a request to a low-cardinality label.
func (m *Metrics) Middleware(route func(*http.Request) string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		label := route(r)
		m.requests.WithLabelValues(r.Method, label, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, label).Observe(time.Since(start).Seconds())
	})
}
