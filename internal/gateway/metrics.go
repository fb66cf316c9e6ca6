package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// labelHandler partitions metrics by the logical endpoint name rather than
// the raw URL path.
const labelHandler = "handler"

// gatewayMetrics holds all Prometheus metrics owned by the gateway.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type gatewayMetrics struct {
	// chatRequestsTotal counts completed /api/v1/chat requests, partitioned by
	// outcome: "ok", "bad_request", or "error".
	chatRequestsTotal *prometheus.CounterVec

	// chatDurationSeconds records the wall-clock duration of each /api/v1/chat
	// request.
	chatDurationSeconds *prometheus.HistogramVec

	// authFailuresTotal counts rejected credentials, partitioned by reason:
	// "unauthenticated" or "rate_limited".
	authFailuresTotal *prometheus.CounterVec

	// retrievalDegradedTotal counts retrieval rounds that lost a collection,
	// partitioned by collection name.
	retrievalDegradedTotal *prometheus.CounterVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, handler, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newGatewayMetrics registers all gateway metrics against reg and returns
// the populated gatewayMetrics. Metrics register into the provided registry,
// never the global default.
func newGatewayMetrics(reg prometheus.Registerer) *gatewayMetrics {
	factory := promauto.With(reg)

	return &gatewayMetrics{
		chatRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adab",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Total number of /api/v1/chat requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adab",
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/v1/chat requests.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),

		authFailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adab",
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Total number of rejected credentials, partitioned by reason.",
		}, []string{"reason"}),

		retrievalDegradedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adab",
			Subsystem: "retrieval",
			Name:      "degraded_total",
			Help:      "Total number of retrieval rounds that lost a collection, partitioned by collection.",
		}, []string{"collection"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adab",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the gateway, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adab",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the gateway.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}
