package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StepValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bountywizard_step_validations_total",
			Help: "Step validations by step and outcome",
		},
		[]string{"step", "result"},
	)

	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bountywizard_submissions_total",
			Help: "Bounty submissions by outcome",
		},
		[]string{"status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bountywizard_active_sessions",
			Help: "Wizard sessions currently held in memory",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bountywizard_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "route", "status"},
	)
)

// RecordValidation counts one step validation.
func RecordValidation(step int, valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	StepValidations.WithLabelValues(strconv.Itoa(step), result).Inc()
}

// RecordSubmission counts one submission attempt by status (ok, failed, rejected).
func RecordSubmission(status string) {
	Submissions.WithLabelValues(status).Inc()
}

// RecordHTTPRequest observes one request.
func RecordHTTPRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
