package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	complaintsReported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_reported_total",
			Help: "Total number of complaints reported",
		},
		[]string{"category", "severity"},
	)

	complaintTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_transitions_total",
			Help: "Total number of complaint status transitions",
		},
		[]string{"from_status", "to_status", "trigger"},
	)

	transitionAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaint_transition_anomalies_total",
			Help: "Lifecycle triggers rejected because the state does not accept them or the version was stale",
		},
		[]string{"status", "trigger", "kind"},
	)

	evidenceValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_validations_total",
			Help: "Photo evidence validation outcomes",
		},
		[]string{"kind", "status"},
	)

	evidenceReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_reason_codes_total",
			Help: "Reason codes attached to validated photos",
		},
		[]string{"reason"},
	)

	scorerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authenticity_scorer_duration_seconds",
			Help:    "Authenticity scorer call duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"outcome"},
	)

	votesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_votes_total",
			Help: "Verification votes recorded, split by verdict and whether they replaced an earlier vote",
		},
		[]string{"verdict", "replaced"},
	)

	rewardPoints = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_points_total",
			Help: "Reward points credited",
		},
		[]string{"event_type"},
	)

	rewardDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_duplicates_total",
			Help: "Reward events ignored because they were already credited",
		},
	)

	sweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifecycle_sweep_actions_total",
			Help: "Actions taken by the lifecycle sweeper",
		},
		[]string{"action"},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_entries_total",
			Help: "Total number of audit entries created",
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Notifications handled, by kind and final status",
		},
		[]string{"kind", "status"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routePattern prefers the chi route template ("/api/v1/complaints/{id}")
// over the raw path to keep label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	if len(r.URL.Path) > 100 {
		return "/api/..."
	}
	return r.URL.Path
}

// --- Business metric helpers ---

func RecordComplaintReported(category, severity string) {
	complaintsReported.WithLabelValues(category, severity).Inc()
}

// RecordTransition records a status change caused by trigger.
func RecordTransition(from, to, trigger string) {
	complaintTransitions.WithLabelValues(from, to, trigger).Inc()
}

// RecordTransitionAnomaly counts a rejected lifecycle mutation. kind is
// "invalid_transition" or "stale_version".
func RecordTransitionAnomaly(status, trigger, kind string) {
	transitionAnomalies.WithLabelValues(status, trigger, kind).Inc()
}

// RecordEvidenceValidation records one validator decision and its reason codes.
func RecordEvidenceValidation(kind, status string, reasons []string) {
	evidenceValidations.WithLabelValues(kind, status).Inc()
	for _, r := range reasons {
		evidenceReasons.WithLabelValues(r).Inc()
	}
}

func RecordScorerCall(outcome string, duration time.Duration) {
	scorerDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func RecordVote(verdict string, replaced bool) {
	votesRecorded.WithLabelValues(verdict, strconv.FormatBool(replaced)).Inc()
}

func RecordRewardCredited(eventType string, points int) {
	rewardPoints.WithLabelValues(eventType).Add(float64(points))
}

func RecordRewardDuplicate() {
	rewardDuplicates.Inc()
}

func RecordSweepAction(action string) {
	sweepRuns.WithLabelValues(action).Inc()
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordNotification records a notification reaching a final status.
func RecordNotification(kind, status string) {
	notificationsTotal.WithLabelValues(kind, status).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
