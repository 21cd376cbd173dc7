// ABOUTME: Prometheus metrics for the gateway: auth outcomes, HTTP traffic, generation calls
// ABOUTME: Collector satisfies auth.Observer and wraps handlers to record request metrics

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records gateway metrics into a Prometheus registry.
type Collector struct {
	authAttempts    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	generationCalls *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreams_auth_attempts_total",
			Help: "Authentication attempts by middleware mode and outcome.",
		}, []string{"mode", "outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreams_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code.",
		}, []string{"route", "method", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dreams_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		generationCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreams_generation_calls_total",
			Help: "Calls to external generation services by service and result.",
		}, []string{"service", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreams_rate_limited_total",
			Help: "Requests rejected by the per-user rate limiter.",
		}),
	}

	reg.MustRegister(
		c.authAttempts,
		c.httpRequests,
		c.httpDuration,
		c.generationCalls,
		c.rateLimited,
	)

	return c
}

// ObserveAuth records one authentication attempt.
func (c *Collector) ObserveAuth(mode, outcome string) {
	c.authAttempts.WithLabelValues(mode, outcome).Inc()
}

// ObserveRequest records a completed HTTP request.
func (c *Collector) ObserveRequest(route, method string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// ObserveGeneration records a call to a generation service. result is
// "ok", "upstream_error", "not_configured" or "canceled".
func (c *Collector) ObserveGeneration(service, result string) {
	c.generationCalls.WithLabelValues(service, result).Inc()
}

// ObserveRateLimited records a rate-limited request.
func (c *Collector) ObserveRateLimited() {
	c.rateLimited.Inc()
}

// Handler returns the HTTP handler serving the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
