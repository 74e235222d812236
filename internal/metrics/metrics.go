// Package metrics exposes Prometheus collectors for the OTP flows.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OTPRequests counts code requests.
	// Labels:
	//   - purpose: "user-registration", "seller-forgot-password", ...
	//   - outcome: "issued", "denied", "delivery_failed", "error"
	OTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_requests_total",
			Help: "Total number of OTP requests",
		},
		[]string{"purpose", "outcome"},
	)

	// OTPDenials counts denied requests by the restriction that fired.
	// Labels:
	//   - reason: "locked", "spam_lock", "cooldown", "spam_threshold"
	OTPDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_denials_total",
			Help: "Total number of OTP requests denied by a restriction",
		},
		[]string{"reason"},
	)

	// OTPVerifications counts code submissions.
	// Labels:
	//   - outcome: "success", "incorrect", "expired", "locked", "error"
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		},
		[]string{"purpose", "outcome"},
	)

	OTPOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "otp_operation_duration_seconds",
			Help:    "Duration of OTP request and verify operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"operation"},
	)

	SecurityEventFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "otp_security_event_failures_total",
			Help: "Total number of security events that could not be recorded",
		},
	)
)

func RecordRequest(purpose, outcome string) {
	OTPRequests.WithLabelValues(purpose, outcome).Inc()
}

func RecordDenial(reason string) {
	OTPDenials.WithLabelValues(reason).Inc()
}

func RecordVerification(purpose, outcome string) {
	OTPVerifications.WithLabelValues(purpose, outcome).Inc()
}

// ObserveDuration is meant to be deferred: defer ObserveDuration("verify", time.Now()).
func ObserveDuration(operation string, start time.Time) {
	OTPOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
