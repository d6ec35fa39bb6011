package packrpc

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// PoolMetrics tracks runtime metrics for a Pool.
type PoolMetrics struct {
	ConnectionsCreated   atomic.Uint64
	ConnectionsDestroyed atomic.Uint64
	ConnectionsActive    atomic.Int32
	ConnectionsIdle      atomic.Int32

	RequestsTotal     atomic.Uint64
	RequestsSucceeded atomic.Uint64
	RequestsFailed    atomic.Uint64
	RequestsTimeout   atomic.Uint64

	latencyMu    sync.RWMutex
	latencies    []time.Duration
	maxLatencies int

	ServerRestarts atomic.Uint64
	ServerFailures atomic.Uint64

	PoolUtilization atomic.Uint64 // percentage of connections active, 0-100
	QueueDepth      atomic.Int32
}

// NewPoolMetrics creates a metrics tracker that keeps the most recent
// 10,000 latencies for percentile calculation.
func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{
		maxLatencies: 10000,
		latencies:    make([]time.Duration, 0, 10000),
	}
}

// RecordLatency appends a request latency sample, evicting the oldest
// sample once the ring is full.
func (m *PoolMetrics) RecordLatency(latency time.Duration) {
	m.latencyMu.Lock()
	defer m.latencyMu.Unlock()
	if len(m.latencies) >= m.maxLatencies {
		m.latencies = m.latencies[1:]
	}
	m.latencies = append(m.latencies, latency)
}

// GetLatencyPercentile returns the given percentile (0-100) of recorded
// latencies.
func (m *PoolMetrics) GetLatencyPercentile(percentile float64) time.Duration {
	m.latencyMu.RLock()
	defer m.latencyMu.RUnlock()
	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(float64(len(sorted)-1) * percentile / 100.0)
	if index < 0 {
		index = 0
	}
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

// GetMetricsSnapshot returns a point-in-time copy of the tracked metrics.
func (m *PoolMetrics) GetMetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		ConnectionsCreated:   m.ConnectionsCreated.Load(),
		ConnectionsDestroyed: m.ConnectionsDestroyed.Load(),
		ConnectionsActive:    m.ConnectionsActive.Load(),
		ConnectionsIdle:      m.ConnectionsIdle.Load(),
		RequestsTotal:        m.RequestsTotal.Load(),
		RequestsSucceeded:    m.RequestsSucceeded.Load(),
		RequestsFailed:       m.RequestsFailed.Load(),
		RequestsTimeout:      m.RequestsTimeout.Load(),
		ServerRestarts:       m.ServerRestarts.Load(),
		ServerFailures:       m.ServerFailures.Load(),
		PoolUtilization:      float64(m.PoolUtilization.Load()) / 100.0,
		QueueDepth:           m.QueueDepth.Load(),
		LatencyP50:           m.GetLatencyPercentile(50),
		LatencyP95:           m.GetLatencyPercentile(95),
		LatencyP99:           m.GetLatencyPercentile(99),
	}
}

// MetricsSnapshot is a point-in-time view of PoolMetrics.
type MetricsSnapshot struct {
	ConnectionsCreated   uint64
	ConnectionsDestroyed uint64
	ConnectionsActive    int32
	ConnectionsIdle      int32

	RequestsTotal     uint64
	RequestsSucceeded uint64
	RequestsFailed    uint64
	RequestsTimeout   uint64

	ServerRestarts uint64
	ServerFailures uint64

	PoolUtilization float64
	QueueDepth      int32
	LatencyP50      time.Duration
	LatencyP95      time.Duration
	LatencyP99      time.Duration

	Timestamp time.Time
}

// PoolWithMetrics wraps a Pool, recording metrics around every Call.
type PoolWithMetrics struct {
	*Pool
	metrics *PoolMetrics
}

// NewPoolWithMetrics creates a Pool with metrics tracking enabled.
func NewPoolWithMetrics(opts PoolOptions, logger *Logger) (*PoolWithMetrics, error) {
	pool, err := NewPool(opts, logger)
	if err != nil {
		return nil, err
	}
	return &PoolWithMetrics{Pool: pool, metrics: NewPoolMetrics()}, nil
}

// Call invokes the wrapped pool's Call and records its outcome.
func (p *PoolWithMetrics) Call(ctx context.Context, method string, input interface{}, output interface{}) error {
	start := time.Now()
	p.metrics.RequestsTotal.Add(1)
	p.metrics.QueueDepth.Add(1)
	defer p.metrics.QueueDepth.Add(-1)

	err := p.Pool.Call(ctx, method, input, output)

	p.metrics.RecordLatency(time.Since(start))

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			p.metrics.RequestsTimeout.Add(1)
		} else {
			p.metrics.RequestsFailed.Add(1)
		}
	} else {
		p.metrics.RequestsSucceeded.Add(1)
	}

	activeConns := p.metrics.ConnectionsActive.Load()
	totalConns := activeConns + p.metrics.ConnectionsIdle.Load()
	if totalConns > 0 {
		p.metrics.PoolUtilization.Store(uint64(activeConns * 100 / totalConns))
	}

	return err
}

// GetMetrics returns a timestamped metrics snapshot.
func (p *PoolWithMetrics) GetMetrics() MetricsSnapshot {
	snapshot := p.metrics.GetMetricsSnapshot()
	snapshot.Timestamp = time.Now()
	return snapshot
}

// ResetMetrics discards all recorded metrics.
func (p *PoolWithMetrics) ResetMetrics() {
	p.metrics = NewPoolMetrics()
}
