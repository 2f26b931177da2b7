// metrics.go - Metrics collection for the pool daemon
package main

import (
	"sync"
	"time"
)

// MetricsCollector keeps counters, gauges and timing histograms for the
// daemon's operational surface.
type MetricsCollector struct {
	mu         sync.RWMutex
	counters   map[string]int64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters:   make(map[string]int64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// IncrementCounter increments a counter metric
func (mc *MetricsCollector) IncrementCounter(name string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[name]++
}

// SetGauge sets a gauge metric value
func (mc *MetricsCollector) SetGauge(name string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.gauges[name] = value
}

// RecordHistogram records a value in a histogram, keeping the last 1000
// samples per name.
func (mc *MetricsCollector) RecordHistogram(name string, value float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	values := append(mc.histograms[name], value)
	if len(values) > 1000 {
		values = values[len(values)-1000:]
	}
	mc.histograms[name] = values
}

// Summary returns a snapshot of all metrics
func (mc *MetricsCollector) Summary() map[string]interface{} {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	counters := make(map[string]int64, len(mc.counters))
	for name, v := range mc.counters {
		counters[name] = v
	}
	gauges := make(map[string]float64, len(mc.gauges))
	for name, v := range mc.gauges {
		gauges[name] = v
	}

	histograms := make(map[string]map[string]float64, len(mc.histograms))
	for name, values := range mc.histograms {
		if len(values) == 0 {
			continue
		}
		h := map[string]float64{
			"count": float64(len(values)),
			"min":   values[0],
			"max":   values[0],
			"sum":   0,
		}
		for _, v := range values {
			if v < h["min"] {
				h["min"] = v
			}
			if v > h["max"] {
				h["max"] = v
			}
			h["sum"] += v
		}
		h["avg"] = h["sum"] / h["count"]
		histograms[name] = h
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// Predefined metric names
const (
	MetricRequestCount        = "request_count"
	MetricErrorCount          = "error_count"
	MetricRollbackCount       = "rollback_count"
	MetricProofGenerationTime = "proof_generation_time"
	MetricTreeNextIndex       = "tree_next_index"
	MetricPayloadCount        = "payload_count"
)

// Convenience methods for common metrics
func (mc *MetricsCollector) RecordRequest() {
	mc.IncrementCounter(MetricRequestCount)
}

func (mc *MetricsCollector) RecordError() {
	mc.IncrementCounter(MetricErrorCount)
}

func (mc *MetricsCollector) RecordRollback() {
	mc.IncrementCounter(MetricRollbackCount)
}

func (mc *MetricsCollector) RecordProofGeneration(d time.Duration) {
	mc.RecordHistogram(MetricProofGenerationTime, d.Seconds())
}
