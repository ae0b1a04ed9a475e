// Package hooks provides Logger and MetricsCollector implementations.
package hooks

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dulceflor/image-pipeline/core"
)

// ── Structured logger adapter ─────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.log.Error(msg, fields...) }

// ── Prometheus metrics collector ──────────────────────────────────────────────

// PrometheusMetrics exposes batch pipeline metrics on a prometheus registry.
type PrometheusMetrics struct {
	stageDuration *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	stageErrors   *prometheus.CounterVec
	bytesSaved    prometheus.Counter
}

// NewPrometheusMetrics registers the pipeline collectors on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imagepipe_stage_duration_seconds",
			Help:    "Time spent per pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagepipe_items_total",
			Help: "Batch items by terminal outcome.",
		}, []string{"outcome"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagepipe_stage_errors_total",
			Help: "Errors by pipeline stage and category.",
		}, []string{"stage", "category"}),
		bytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagepipe_bytes_saved_total",
			Help: "Cumulative bytes saved by WebP conversion.",
		}),
	}
	reg.MustRegister(m.stageDuration, m.outcomes, m.stageErrors, m.bytesSaved)
	return m
}

func (m *PrometheusMetrics) RecordStageTime(stage string, d interface{ Seconds() float64 }) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordOutcome(outcome string) {
	m.outcomes.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) RecordBytesSaved(bytes int64) {
	if bytes > 0 {
		m.bytesSaved.Add(float64(bytes))
	}
}

func (m *PrometheusMetrics) RecordError(stage, category string) {
	m.stageErrors.WithLabelValues(stage, category).Inc()
}

// ── In-memory metrics collector ───────────────────────────────────────────────

// InMemoryMetrics accumulates metrics atomically; safe for concurrent use.
// Used by tests and by the CLI's end-of-run summary.
type InMemoryMetrics struct {
	mu sync.RWMutex

	stageDurationsMs map[string]int64
	stageCalls       map[string]int64
	stageErrors      map[string]int64
	outcomes         map[string]int64

	totalBytesSaved int64
}

// NewInMemoryMetrics creates an empty metrics store.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		stageDurationsMs: make(map[string]int64),
		stageCalls:       make(map[string]int64),
		stageErrors:      make(map[string]int64),
		outcomes:         make(map[string]int64),
	}
}

func (m *InMemoryMetrics) RecordStageTime(stage string, d interface{ Seconds() float64 }) {
	ms := int64(d.Seconds() * 1000)
	m.mu.Lock()
	m.stageDurationsMs[stage] += ms
	m.stageCalls[stage]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordOutcome(outcome string) {
	m.mu.Lock()
	m.outcomes[outcome]++
	m.mu.Unlock()
}

func (m *InMemoryMetrics) RecordBytesSaved(bytes int64) {
	atomic.AddInt64(&m.totalBytesSaved, bytes)
}

func (m *InMemoryMetrics) RecordError(stage string, _ string) {
	m.mu.Lock()
	m.stageErrors[stage]++
	m.mu.Unlock()
}

// Snapshot returns a copy of current metrics.
func (m *InMemoryMetrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		StageDurationsMs: make(map[string]int64, len(m.stageDurationsMs)),
		StageCalls:       make(map[string]int64, len(m.stageCalls)),
		StageErrors:      make(map[string]int64, len(m.stageErrors)),
		Outcomes:         make(map[string]int64, len(m.outcomes)),
		TotalBytesSaved:  atomic.LoadInt64(&m.totalBytesSaved),
	}
	for k, v := range m.stageDurationsMs {
		snap.StageDurationsMs[k] = v
	}
	for k, v := range m.stageCalls {
		snap.StageCalls[k] = v
	}
	for k, v := range m.stageErrors {
		snap.StageErrors[k] = v
	}
	for k, v := range m.outcomes {
		snap.Outcomes[k] = v
	}
	return snap
}

// MetricsSnapshot is an immutable point-in-time copy of metrics.
type MetricsSnapshot struct {
	StageDurationsMs map[string]int64
	StageCalls       map[string]int64
	StageErrors      map[string]int64
	Outcomes         map[string]int64
	TotalBytesSaved  int64
}

// compile-time interface checks
var (
	_ core.Logger           = (*SlogLogger)(nil)
	_ core.MetricsCollector = (*PrometheusMetrics)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)
