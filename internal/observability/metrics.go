package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	errors            *prometheus.CounterVec
	decisions         *prometheus.CounterVec
	terminalAuth      *prometheus.CounterVec
	rateLimitRejected prometheus.Counter
	duplicateTaps     prometheus.Counter
	dedupFailOpen     prometheus.Counter
	eventLogFailures  prometheus.Counter
	pendingExpired    *prometheus.CounterVec
}

// NewMetrics registers collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "access_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "access_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route", "method"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "access_http_errors_total",
			Help: "Error responses by route and error code",
		}, []string{"route", "method", "code"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Card tap decisions by outcome",
		}, []string{"outcome"}),
		terminalAuth: f.NewCounterVec(prometheus.CounterOpts{
			Name: "access_terminal_auth_total",
			Help: "Terminal authentications by result (cache_hit, cache_miss, rejected)",
		}, []string{"result"}),
		rateLimitRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "access_ratelimit_rejections_total",
			Help: "Requests rejected by the terminal rate limiter",
		}),
		duplicateTaps: f.NewCounter(prometheus.CounterOpts{
			Name: "access_duplicate_taps_total",
			Help: "Taps suppressed by the cooldown window",
		}),
		dedupFailOpen: f.NewCounter(prometheus.CounterOpts{
			Name: "access_dedup_fail_open_total",
			Help: "Cooldown backend errors treated as not duplicate",
		}),
		eventLogFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "access_event_log_failures_total",
			Help: "Audit events that could not be persisted",
		}),
		pendingExpired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "access_pending_assignments_expired_total",
			Help: "Expired pending assignments removed, by source (tap, sweeper)",
		}, []string{"source"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(route, method, code).Inc()
}

func (m *Metrics) RecordDecision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordTerminalAuth(result string) {
	if m == nil {
		return
	}
	m.terminalAuth.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementRateLimitRejections() {
	if m == nil {
		return
	}
	m.rateLimitRejected.Inc()
}

func (m *Metrics) IncrementDuplicateTaps() {
	if m == nil {
		return
	}
	m.duplicateTaps.Inc()
}

func (m *Metrics) IncrementDedupFailOpen() {
	if m == nil {
		return
	}
	m.dedupFailOpen.Inc()
}

func (m *Metrics) IncrementEventLogFailures() {
	if m == nil {
		return
	}
	m.eventLogFailures.Inc()
}

func (m *Metrics) AddPendingExpired(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.pendingExpired.WithLabelValues(source).Add(float64(n))
}
