// Package metrics exposes prometheus counters and histograms for the HTTP
// layer and the triage workflow.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
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

	// Triage metrics
	triageRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_runs_total",
			Help: "Total number of triage evaluations by outcome",
		},
		[]string{"outcome"},
	)

	triageDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triage_duration_seconds",
			Help:    "Time spent building a render plan",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	cdsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_requests_total",
			Help: "Total number of requests to the CDS backend",
		},
		[]string{"status"},
	)

	cdsRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cds_request_duration_seconds",
			Help:    "CDS backend request duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 15},
		},
	)

	smartDefaultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smart_defaults_total",
			Help: "Total number of smart-default checkbox changes",
		},
		[]string{"control", "action"},
	)

	responsesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_responses_dropped_total",
			Help: "CDS responses dropped before rendering",
		},
		[]string{"reason"},
	)

	hookFeedbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cds_hook_feedback_total",
			Help: "CDS Hooks card feedback by outcome",
		},
		[]string{"service", "outcome"},
	)

	openSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "followup_sessions_open",
			Help: "Number of open follow-up sessions",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency. Paths are the route
// templates so ids do not explode label cardinality.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			httpRequestsTotal.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// --- Triage metric helpers ---

// RecordTriage records one triage evaluation.
func RecordTriage(outcome string, duration time.Duration) {
	triageRunsTotal.WithLabelValues(outcome).Inc()
	triageDuration.Observe(duration.Seconds())
}

// RecordCDSRequest records a request to the CDS backend.
func RecordCDSRequest(status string, duration time.Duration) {
	cdsRequestsTotal.WithLabelValues(status).Inc()
	cdsRequestDuration.Observe(duration.Seconds())
}

// RecordSmartDefault records a checkbox change.
func RecordSmartDefault(control, action string) {
	smartDefaultsTotal.WithLabelValues(control, action).Inc()
}

// RecordDroppedResponse records a response dropped as stale or debounced.
func RecordDroppedResponse(reason string) {
	responsesDropped.WithLabelValues(reason).Inc()
}

// RecordHookFeedback records one CDS Hooks card outcome.
func RecordHookFeedback(service, outcome string) {
	hookFeedbackTotal.WithLabelValues(service, outcome).Inc()
}

// SetOpenSessions sets the open follow-up session gauge.
func SetOpenSessions(n int) {
	openSessions.Set(float64(n))
}
