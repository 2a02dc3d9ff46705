package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Singleton instance
	instance *PrometheusMetrics
	once     sync.Once
)

// PrometheusMetrics handles all metrics collection for the controller
type PrometheusMetrics struct {
	// Cluster metrics
	NodesByState   *prometheus.GaugeVec
	HeartbeatsTotal prometheus.Counter

	// Decommission metrics
	BlocksPending prometheus.Gauge
	BlocksBlocked prometheus.Gauge
	ScanDuration  prometheus.Histogram

	// Replication metrics
	ReplicaRequestsTotal *prometheus.CounterVec

	// API metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// GetMetrics returns the singleton PrometheusMetrics instance
func GetMetrics() *PrometheusMetrics {
	once.Do(func() {
		instance = &PrometheusMetrics{
			NodesByState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "cluster_nodes",
					Help: "The number of cluster nodes per decommission state",
				},
				[]string{"state"},
			),
			HeartbeatsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "heartbeats_received_total",
				Help: "The total number of node heartbeats received",
			}),

			BlocksPending: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "decommission_blocks_pending",
				Help: "Blocks below their live-replica threshold across all decommissioning nodes",
			}),
			BlocksBlocked: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "decommission_blocks_blocked",
				Help: "Pending blocks with no eligible replication target",
			}),
			ScanDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "replication_scan_duration_seconds",
				Help:    "Duration of replication monitor scan cycles",
				Buckets: prometheus.DefBuckets,
			}),

			ReplicaRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "replica_requests_total",
					Help: "Replica-creation requests issued, by outcome",
				},
				[]string{"outcome"},
			),

			RequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "requests_total",
					Help: "The total number of processed API requests",
				},
				[]string{"method", "endpoint", "status"},
			),
			RequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "request_duration_seconds",
					Help:    "The API request latencies in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "endpoint"},
			),
			RequestsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "requests_in_flight",
				Help: "The number of API requests currently being processed",
			}),
		}
	})
	return instance
}

// ObserveScan records one replication scan cycle
func (m *PrometheusMetrics) ObserveScan(duration time.Duration, pending, blocked int) {
	m.ScanDuration.Observe(duration.Seconds())
	m.BlocksPending.Set(float64(pending))
	m.BlocksBlocked.Set(float64(blocked))
}

// RecordReplicaRequest counts one replica-creation dispatch
func (m *PrometheusMetrics) RecordReplicaRequest(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.ReplicaRequestsTotal.WithLabelValues(outcome).Inc()
}

// SetNodeStates updates the per-state node gauges from a report
func (m *PrometheusMetrics) SetNodeStates(counts map[string]int) {
	for state, n := range counts {
		m.NodesByState.WithLabelValues(state).Set(float64(n))
	}
}

// RecordRequest counts one completed API request
func (m *PrometheusMetrics) RecordRequest(method, endpoint, status string) {
	m.RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
}

// ObserveRequestDuration records the latency of one API request
func (m *PrometheusMetrics) ObserveRequestDuration(method, endpoint string, seconds float64) {
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}

// IncRequestsInFlight increments the in-flight gauge
func (m *PrometheusMetrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

// DecRequestsInFlight decrements the in-flight gauge
func (m *PrometheusMetrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}

// Handler returns the HTTP handler serving the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
