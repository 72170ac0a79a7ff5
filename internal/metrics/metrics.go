package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipforge_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	jobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_jobs_created_total",
			Help: "Generation jobs created by module",
		},
		[]string{"module"},
	)

	jobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_job_transitions_total",
			Help: "Job status transitions by module and target status",
		},
		[]string{"module", "status"},
	)

	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clipforge_job_duration_seconds",
			Help:    "Time from job creation to a terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"module", "status"},
	)

	dispatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_dispatch_failures_total",
			Help: "Failed provider submissions by module",
		},
		[]string{"module"},
	)

	jobsExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_jobs_expired_total",
			Help: "Jobs failed for outliving the job deadline",
		},
		[]string{"module"},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clipforge_idempotency_hits_total",
			Help: "Job creations answered with an existing job",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"scope"},
	)

	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clipforge_notifications_created_total",
			Help: "In-app notifications created by type",
		},
		[]string{"type"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clipforge_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordJobCreated counts a newly created job
func RecordJobCreated(module string) {
	jobsCreated.WithLabelValues(module).Inc()
}

// RecordJobTransition counts a status change; terminal statuses also
// observe the job's total runtime.
func RecordJobTransition(module, status string, age time.Duration) {
	jobTransitions.WithLabelValues(module, status).Inc()
	if status == "completed" || status == "failed" {
		jobDuration.WithLabelValues(module, status).Observe(age.Seconds())
	}
}

// RecordDispatchFailure counts a provider submission error
func RecordDispatchFailure(module string) {
	dispatchFailures.WithLabelValues(module).Inc()
}

// RecordJobExpired counts a job failed by the deadline sweep
func RecordJobExpired(module string) {
	jobsExpired.WithLabelValues(module).Inc()
}

// RecordIdempotencyHit records a replayed job creation
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(scope string) {
	rateLimitRejections.WithLabelValues(scope).Inc()
}

// RecordNotificationCreated counts an in-app notification
func RecordNotificationCreated(notificationType string) {
	notificationsCreated.WithLabelValues(notificationType).Inc()
}

// RecordBreakerState exports the current state of a named breaker
func RecordBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// Middleware records request metrics labelled by the chi route pattern so
// ids in paths do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, RoutePattern(r), status, time.Since(start))
	})
}

// RoutePattern returns the matched chi pattern, or "unmatched".
func RoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
