// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RemoteCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remote_calls_total",
			Help: "Total number of backend calls by outcome",
		},
		[]string{"method", "path", "outcome"},
	)

	RemoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_call_duration_seconds",
			Help:    "Duration of backend calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RemoteCallsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "remote_calls_in_flight",
			Help: "Number of backend calls awaiting a response",
		},
		[]string{"path"},
	)

	StorageWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "client_storage_writes_total",
			Help: "Total number of durable client storage commits",
		},
		[]string{"result"},
	)
)
