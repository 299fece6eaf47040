package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type txMetrics struct {
	applied *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

type rpcMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	txMetricsOnce sync.Once
	txRegistry    *txMetrics

	rpcMetricsOnce sync.Once
	rpcRegistry    *rpcMetrics
)

// TxMetrics returns the lazily-initialised transaction metrics registry.
func TxMetrics() *txMetrics {
	txMetricsOnce.Do(func() {
		txRegistry = &txMetrics{
			applied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundvault",
				Subsystem: "tx",
				Name:      "applied_total",
				Help:      "Total transactions applied segmented by type and outcome.",
			}, []string{"type", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fundvault",
				Subsystem: "tx",
				Name:      "apply_seconds",
				Help:      "Latency of transaction application.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type"}),
		}
		prometheus.MustRegister(txRegistry.applied, txRegistry.latency)
	})
	return txRegistry
}

// Observe records one transaction application.
func (m *txMetrics) Observe(txType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.applied.WithLabelValues(txType, outcome).Inc()
	m.latency.WithLabelValues(txType).Observe(d.Seconds())
}

// RPCMetrics returns the lazily-initialised RPC metrics registry.
func RPCMetrics() *rpcMetrics {
	rpcMetricsOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fundvault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fundvault",
				Subsystem: "rpc",
				Name:      "request_seconds",
				Help:      "Latency of JSON-RPC request handling.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency)
	})
	return rpcRegistry
}

// Observe records one RPC request.
func (m *rpcMetrics) Observe(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}
