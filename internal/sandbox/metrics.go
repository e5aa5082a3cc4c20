package sandbox

import (
	"sync"
	"time"
)

// Metrics holds per-worker execution counters. Each worker owns one
// instance; snapshots are merged across the pool on introspection.
type Metrics struct {
	mu                sync.Mutex
	executions        uint64
	succeeded         uint64
	failed            uint64
	timedOut          uint64
	compileFailed     uint64
	omittedExtensions uint64
	totalDuration     time.Duration
	startedAt         time.Time
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

// RecordExecution updates counters from a finished execution.
func (m *Metrics) RecordExecution(res *ExecutionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.executions++
	m.totalDuration += time.Duration(res.ExecutionTimeMs * float64(time.Millisecond))

	switch {
	case res.OK():
		m.succeeded++
	case res.ErrorKind == ErrKindTimeout:
		m.timedOut++
	case res.ErrorKind == ErrKindCompile:
		m.compileFailed++
	default:
		m.failed++
	}
}

// AddOmittedExtensions counts author extensions dropped at surface build.
func (m *Metrics) AddOmittedExtensions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omittedExtensions += uint64(n)
}

// Reset zeroes all counters. Explicit operator action only.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executions = 0
	m.succeeded = 0
	m.failed = 0
	m.timedOut = 0
	m.compileFailed = 0
	m.omittedExtensions = 0
	m.totalDuration = 0
	m.startedAt = time.Now()
}

// MetricsSnapshot is a point-in-time view of one worker's counters plus its
// cache state.
type MetricsSnapshot struct {
	Executions           uint64     `json:"executions"`
	Succeeded            uint64     `json:"succeeded"`
	Failed               uint64     `json:"failed"`
	TimedOut             uint64     `json:"timedOut"`
	CompileFailed        uint64     `json:"compileFailed"`
	OmittedExtensions    uint64     `json:"omittedExtensions"`
	TotalExecutionTimeMs float64    `json:"totalExecutionTimeMs"`
	AvgExecutionTimeMs   float64    `json:"avgExecutionTimeMs"`
	UptimeSeconds        float64    `json:"uptimeSeconds"`
	Cache                CacheStats `json:"cache"`
}

// Snapshot captures current counters alongside the given cache stats.
func (m *Metrics) Snapshot(cache CacheStats) MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MetricsSnapshot{
		Executions:           m.executions,
		Succeeded:            m.succeeded,
		Failed:               m.failed,
		TimedOut:             m.timedOut,
		CompileFailed:        m.compileFailed,
		OmittedExtensions:    m.omittedExtensions,
		TotalExecutionTimeMs: DurationMs(m.totalDuration),
		UptimeSeconds:        time.Since(m.startedAt).Seconds(),
		Cache:                cache,
	}
	if m.executions > 0 {
		snap.AvgExecutionTimeMs = snap.TotalExecutionTimeMs / float64(m.executions)
	}
	return snap
}

// MergeSnapshots aggregates per-worker snapshots into a pool-wide view.
// Averages are weighted by execution count; cache capacity and occupancy
// are summed because each worker owns an independent cache.
func MergeSnapshots(snaps ...MetricsSnapshot) MetricsSnapshot {
	var merged MetricsSnapshot
	for _, s := range snaps {
		merged.Executions += s.Executions
		merged.Succeeded += s.Succeeded
		merged.Failed += s.Failed
		merged.TimedOut += s.TimedOut
		merged.CompileFailed += s.CompileFailed
		merged.OmittedExtensions += s.OmittedExtensions
		merged.TotalExecutionTimeMs += s.TotalExecutionTimeMs
		if s.UptimeSeconds > merged.UptimeSeconds {
			merged.UptimeSeconds = s.UptimeSeconds
		}
		merged.Cache.Entries += s.Cache.Entries
		merged.Cache.Capacity += s.Cache.Capacity
		merged.Cache.Hits += s.Cache.Hits
		merged.Cache.Misses += s.Cache.Misses
		merged.Cache.Evictions += s.Cache.Evictions
	}
	if merged.Executions > 0 {
		merged.AvgExecutionTimeMs = merged.TotalExecutionTimeMs / float64(merged.Executions)
	}
	return merged
}
