// Package metrics exposes the emulator's operational counters and the
// shim call trace log.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shimCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakegpu_shim_calls_total",
			Help: "Total management library calls by operation",
		},
		[]string{"op"},
	)

	deviceCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fakegpu_devices",
			Help: "Number of fabricated devices in the active registry",
		},
	)

	treePublished = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fakegpu_tree_published",
			Help: "Whether the device tree is published (1) or not (0)",
		},
	)

	leaseHeld = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fakegpu_lease_held",
			Help: "Whether this process holds the presence lease (1) or not (0)",
		},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fakegpu_http_requests_total",
			Help: "Total requests to the inspection API",
		},
		[]string{"method", "path", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fakegpu_http_request_duration_seconds",
			Help:    "Inspection API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Recorder updates the process-wide collectors. Its Trace method
// satisfies the shim's tracer contract, so plugging a Recorder into a
// shim counts every call by operation.
type Recorder struct{}

// NewRecorder creates a metrics recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Trace counts one shim call. Only entries are counted so a call
// contributes once whether it succeeds or fails.
func (r *Recorder) Trace(op, msg string) {
	if msg == "enter" {
		shimCalls.WithLabelValues(op).Inc()
	}
}

// SetDeviceCount publishes the registry size.
func (r *Recorder) SetDeviceCount(n int) {
	deviceCount.Set(float64(n))
}

// SetTreePublished flips the tree presence gauge.
func (r *Recorder) SetTreePublished(published bool) {
	treePublished.Set(boolGauge(published))
}

// SetLeaseHeld flips the lease gauge.
func (r *Recorder) SetLeaseHeld(held bool) {
	leaseHeld.Set(boolGauge(held))
}

// RecordRequest records one inspection API request.
func (r *Recorder) RecordRequest(method, path string, status int, duration time.Duration) {
	requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
