package backend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/normanking/gravitas/internal/logging"
)

// MetricsConnector wraps a Connector with timing and failure accounting.
type MetricsConnector struct {
	conn Connector
	name string
	log  *logging.Logger

	// Atomic counters
	totalCalls  int64
	totalErrors int64

	// Protected by mutex
	mu           sync.RWMutex
	totalLatency time.Duration
	minLatency   time.Duration
	maxLatency   time.Duration
	failures     map[FailureKind]int64
}

// Metrics is a point-in-time snapshot of one connector's counters.
type Metrics struct {
	Backend      string                `json:"backend"`
	Calls        int64                 `json:"calls"`
	Errors       int64                 `json:"errors"`
	ErrorRate    float64               `json:"error_rate"`
	AvgLatencyMs int64                 `json:"avg_latency_ms"`
	MinLatencyMs int64                 `json:"min_latency_ms"`
	MaxLatencyMs int64                 `json:"max_latency_ms"`
	Failures     map[FailureKind]int64 `json:"failures"`
}

// NewMetricsConnector wraps a connector with metrics collection.
func NewMetricsConnector(conn Connector) *MetricsConnector {
	return &MetricsConnector{
		conn:       conn,
		name:       conn.Name(),
		log:        logging.Global().WithComponent("backend"),
		minLatency: time.Hour, // Replaced on first call
		failures:   make(map[FailureKind]int64),
	}
}

// Invoke implements Connector with metrics.
func (m *MetricsConnector) Invoke(ctx context.Context, req *InvokeRequest) (*Payload, error) {
	start := time.Now()
	payload, err := m.conn.Invoke(ctx, req)
	latency := time.Since(start)

	atomic.AddInt64(&m.totalCalls, 1)
	if err != nil {
		atomic.AddInt64(&m.totalErrors, 1)
	}

	m.mu.Lock()
	m.totalLatency += latency
	if latency < m.minLatency {
		m.minLatency = latency
	}
	if latency > m.maxLatency {
		m.maxLatency = latency
	}
	if err != nil {
		m.failures[KindOf(err)]++
	}
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("%s failed after %v: %v", m.name, latency, err)
	} else {
		m.log.Debug("%s completed in %v", m.name, latency)
	}

	return payload, err
}

// Name implements Connector.
func (m *MetricsConnector) Name() string {
	return m.name
}

// Available implements Connector.
func (m *MetricsConnector) Available() bool {
	return m.conn.Available()
}

// Unwrap returns the underlying connector.
func (m *MetricsConnector) Unwrap() Connector {
	return m.conn
}

// Snapshot returns current metrics.
func (m *MetricsConnector) Snapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	calls := atomic.LoadInt64(&m.totalCalls)
	errs := atomic.LoadInt64(&m.totalErrors)

	avg := time.Duration(0)
	if calls > 0 {
		avg = m.totalLatency / time.Duration(calls)
	}

	errorRate := float64(0)
	if calls > 0 {
		errorRate = float64(errs) / float64(calls)
	}

	min := m.minLatency
	if calls == 0 {
		min = 0
	}

	failures := make(map[FailureKind]int64, len(m.failures))
	for k, v := range m.failures {
		failures[k] = v
	}

	return Metrics{
		Backend:      m.name,
		Calls:        calls,
		Errors:       errs,
		ErrorRate:    errorRate,
		AvgLatencyMs: avg.Milliseconds(),
		MinLatencyMs: min.Milliseconds(),
		MaxLatencyMs: m.maxLatency.Milliseconds(),
		Failures:     failures,
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ═══════════════════════════════════════════════════════════════════════════════

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*MetricsConnector)
)

// Register adds a metrics connector to the process-wide registry. A later
// registration under the same name replaces the earlier one.
func Register(mc *MetricsConnector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[mc.Name()] = mc
}

// AllMetrics returns a snapshot of every registered connector.
func AllMetrics() []Metrics {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Metrics, 0, len(registry))
	for _, mc := range registry {
		out = append(out, mc.Snapshot())
	}
	return out
}

// ResetRegistry clears the registry. Used by tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]*MetricsConnector)
}
