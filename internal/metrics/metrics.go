// Package metrics registers the Prometheus collectors exported on /api/metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TxAttempts counts document store transaction attempts by outcome
	// (committed, conflict, failed).
	TxAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rounds_tx_attempts_total",
		Help: "Document store transaction attempts by outcome",
	}, []string{"outcome"})

	KMSRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rounds_kms_requests_total",
		Help: "KMS oracle calls by operation and status",
	}, []string{"operation", "status"})

	KeyCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rounds_key_cache_total",
		Help: "Key provisioning cache lookups by cache and result",
	}, []string{"cache", "result"})

	OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rounds_operation_duration_seconds",
		Help:    "Engine operation latency",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation", "code"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
