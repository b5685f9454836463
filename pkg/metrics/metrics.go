package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Entity metrics
	ServicesCached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authbridge_services_cached",
			Help: "Number of services currently held in the cache",
		},
	)

	WorkspacesCached = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "authbridge_workspaces_cached",
			Help: "Number of workspaces currently held in the cache",
		},
	)

	CacheReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authbridge_cache_reloads_total",
			Help: "Total number of cache reloads by entity type",
		},
		[]string{"type"},
	)

	// Token metrics
	TokensIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authbridge_tokens_issued_total",
			Help: "Total number of JWTs minted",
		},
	)

	TokensVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authbridge_tokens_verified_total",
			Help: "Total number of JWT verifications by result",
		},
		[]string{"result"},
	)

	KeyRotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "authbridge_key_rotations_total",
			Help: "Total number of RSA key rotations",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authbridge_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authbridge_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authbridge_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter, by bucket",
		},
		[]string{"bucket"},
	)
)

func init() {
	prometheus.MustRegister(
		ServicesCached,
		WorkspacesCached,
		CacheReloads,
		TokensIssued,
		TokensVerified,
		KeyRotations,
		APIRequestsTotal,
		APIRequestDuration,
		RateLimited,
	)
}

// Handler returns the HTTP handler serving the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
