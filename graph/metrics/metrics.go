// Package metrics exposes Prometheus instrumentation for graph
// executions: inflight node count, queue depth, per-node step latency,
// retries, merge conflicts, and backpressure events.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects execution metrics under the "graphkit" namespace.
// Safe for concurrent use from parallel branches.
type Recorder struct {
	inflightNodes prometheus.Gauge
	queueDepth    prometheus.Gauge

	stepLatency *prometheus.HistogramVec

	retries        *prometheus.CounterVec
	mergeConflicts *prometheus.CounterVec
	backpressure   *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewRecorder registers every metric with registry (use
// prometheus.DefaultRegisterer for the global registry, or a fresh
// prometheus.NewRegistry() for isolation in tests).
func NewRecorder(registry prometheus.Registerer) *Recorder {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	r := &Recorder{enabled: true}

	r.inflightNodes = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "graphkit",
		Name:      "inflight_nodes",
		Help:      "Current number of nodes executing concurrently",
	})
	r.queueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "graphkit",
		Name:      "queue_depth",
		Help:      "Number of nodes waiting to execute",
	})
	r.stepLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "graphkit",
		Name:      "step_latency_ms",
		Help:      "Node execution duration in milliseconds",
		Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
	}, []string{"execution_id", "node_id", "status"})
	r.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphkit",
		Name:      "retries_total",
		Help:      "Cumulative node retry attempts",
	}, []string{"execution_id", "node_id"})
	r.mergeConflicts = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphkit",
		Name:      "merge_conflicts_total",
		Help:      "Concurrent state merge conflicts detected during parallel fan-out",
	}, []string{"execution_id", "field"})
	r.backpressure = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphkit",
		Name:      "backpressure_events_total",
		Help:      "Events where a stream consumer fell behind the executor",
	}, []string{"execution_id"})

	return r
}

func (r *Recorder) RecordStepLatency(executionID, nodeID string, latency time.Duration, status string) {
	if !r.isEnabled() {
		return
	}
	r.stepLatency.WithLabelValues(executionID, nodeID, status).Observe(float64(latency.Milliseconds()))
}

func (r *Recorder) IncrementRetries(executionID, nodeID string) {
	if !r.isEnabled() {
		return
	}
	r.retries.WithLabelValues(executionID, nodeID).Inc()
}

func (r *Recorder) UpdateQueueDepth(depth int) {
	if !r.isEnabled() {
		return
	}
	r.queueDepth.Set(float64(depth))
}

func (r *Recorder) UpdateInflightNodes(count int) {
	if !r.isEnabled() {
		return
	}
	r.inflightNodes.Set(float64(count))
}

func (r *Recorder) IncrementMergeConflicts(executionID, field string) {
	if !r.isEnabled() {
		return
	}
	r.mergeConflicts.WithLabelValues(executionID, field).Inc()
}

func (r *Recorder) IncrementBackpressure(executionID string) {
	if !r.isEnabled() {
		return
	}
	r.backpressure.WithLabelValues(executionID).Inc()
}

func (r *Recorder) isEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Disable stops metric recording, useful in tests that don't want to
// pollute a shared default registry's counters.
func (r *Recorder) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
}

func (r *Recorder) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}
