// Package observability provides Prometheus metrics for the conductors
// and guards.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RequestBuckets covers typical request-handling latencies, from 1ms to 10s.
var RequestBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts handled requests by protocol and outcome code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cara_requests_total",
			Help: "Total requests",
		},
		[]string{"protocol", "code"},
	)

	// RequestDuration records request handling duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cara_request_duration_seconds",
			Help:    "Request duration",
			Buckets: RequestBuckets,
		},
		[]string{"protocol"},
	)

	// AuthFailuresTotal counts failed authentication checks by guard and kind.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cara_auth_failures_total",
			Help: "Authentication failures",
		},
		[]string{"guard", "kind"},
	)

	// TokensIssuedTotal counts access tokens issued by login and refresh.
	TokensIssuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cara_tokens_issued_total",
			Help: "Access tokens issued",
		},
	)

	// TokensRevokedTotal counts tokens placed on the revocation list.
	TokensRevokedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cara_tokens_revoked_total",
			Help: "Access tokens revoked",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by a rate window.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cara_rate_limit_rejected_total",
			Help: "Requests rejected by rate limiting",
		},
		[]string{"scope"},
	)

	// SocketsActive tracks currently open WebSocket conversations.
	SocketsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cara_sockets_active",
			Help: "Open WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthFailuresTotal,
		TokensIssuedTotal,
		TokensRevokedTotal,
		RateLimitRejectedTotal,
		SocketsActive,
	)
}
