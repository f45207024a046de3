package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kailas-cloud/fastdispatch/internal/usecase/dispatch"
)

const namespace = "fastdispatch"

// Dispatch Prometheus metrics.
var (
	DispatchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Total number of dispatcher phases run",
		},
		[]string{"phase", "status"},
	)

	DispatchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_request_duration_seconds",
			Help:      "Dispatcher phase duration in seconds",
			Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"phase"},
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups",
		},
		[]string{"phase", "result"}, // "hit" / "miss"
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Number of queries held by the response cache",
		},
	)

	CacheBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_bytes",
			Help:      "Estimated size of the response cache in bytes",
		},
	)

	PingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ping_total",
			Help:      "Backend pings by outcome",
		},
		[]string{"status"},
	)

	BackendSelectionTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_selection_total",
			Help:      "Query phase backend choices",
		},
		[]string{"target"}, // "dispatch" / "direct"
	)
)

var registerOnce sync.Once

// RegisterDispatchMetrics registers the dispatch metrics with the default
// registry. Safe to call more than once.
func RegisterDispatchMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			DispatchRequestsTotal,
			DispatchRequestDuration,
			CacheLookupsTotal,
			CacheEntries,
			CacheBytes,
			PingTotal,
			BackendSelectionTotal,
		)
	})
}

// Dispatcher returns the collectors a dispatcher reports to.
func Dispatcher() dispatch.Metrics {
	return dispatch.Metrics{
		Requests:     DispatchRequestsTotal,
		Duration:     DispatchRequestDuration,
		CacheLookups: CacheLookupsTotal,
	}
}
