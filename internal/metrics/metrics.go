// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_issued_total",
			Help: "OTP challenges issued, by intent",
		},
		[]string{"intent"},
	)

	OTPThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_throttled_total",
			Help: "OTP issue requests rejected while a code was still live",
		},
		[]string{"intent"},
	)

	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "otp_verifications_total",
			Help: "OTP verification attempts, by intent and result",
		},
		[]string{"intent", "result"},
	)

	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts, by outcome",
		},
		[]string{"result"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhook deliveries, by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	MailSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_sent_total",
			Help: "Outbound emails, by result",
		},
		[]string{"result"},
	)

	MailDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mail_dropped_total",
			Help: "Emails dropped because the dispatch queue was full or closed",
		},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_exceeded_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"limiter"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
		},
		[]string{"method", "status"},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
