package infra

import (
	"sync/atomic"
	"time"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	requestsTotal atomic.Uint64
	retriesTotal  atomic.Uint64
	pollsTotal    atomic.Uint64
	errorsTotal   atomic.Uint64

	// Latency tracking
	latencySumNs atomic.Int64
	latencyCount atomic.Uint64
}

// GlobalMetrics is the singleton metrics instance.
var GlobalMetrics = &Metrics{}

// RecordRequest records an issued API request with its latency.
func (m *Metrics) RecordRequest(latency time.Duration) {
	m.requestsTotal.Add(1)
	m.latencySumNs.Add(latency.Nanoseconds())
	m.latencyCount.Add(1)
}

// RecordRetry records a retried fetch attempt.
func (m *Metrics) RecordRetry() {
	m.retriesTotal.Add(1)
}

// RecordPoll records one completed tracking iteration.
func (m *Metrics) RecordPoll() {
	m.pollsTotal.Add(1)
}

// RecordError records an error occurrence.
func (m *Metrics) RecordError() {
	m.errorsTotal.Add(1)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	RequestsTotal uint64
	RetriesTotal  uint64
	PollsTotal    uint64
	ErrorsTotal   uint64
	AvgLatencyNs  int64
	Timestamp     time.Time
}

// Snapshot returns current metrics as a snapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var avgLatency int64
	count := m.latencyCount.Load()
	if count > 0 {
		avgLatency = m.latencySumNs.Load() / int64(count)
	}

	return MetricsSnapshot{
		RequestsTotal: m.requestsTotal.Load(),
		RetriesTotal:  m.retriesTotal.Load(),
		PollsTotal:    m.pollsTotal.Load(),
		ErrorsTotal:   m.errorsTotal.Load(),
		AvgLatencyNs:  avgLatency,
		Timestamp:     time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.requestsTotal.Store(0)
	m.retriesTotal.Store(0)
	m.pollsTotal.Store(0)
	m.errorsTotal.Store(0)
	m.latencySumNs.Store(0)
	m.latencyCount.Store(0)
}
