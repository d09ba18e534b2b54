package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	// AuthEvents counts auth workflow outcomes, e.g. op="login" outcome="INVALID_CREDENTIALS".
	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskhub_auth_events_total",
			Help: "Auth workflow outcomes by operation.",
		},
		[]string{"op", "outcome"},
	)
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskhub_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		},
	)
)

const OutcomeOK = "ok"

func Register(registry *prometheus.Registry) {
	registry.MustRegister(RequestCount, RequestDuration, AuthEvents, RateLimited)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
