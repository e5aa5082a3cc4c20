package monitoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpessa/dynamic-text-sub006/internal/sandbox"
)

func gatherValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	metric:
		for _, metric := range fam.GetMetric() {
			for k, v := range labels {
				found := false
				for _, pair := range metric.GetLabel() {
					if pair.GetName() == k && pair.GetValue() == v {
						found = true
						break
					}
				}
				if !found {
					continue metric
				}
			}
			if metric.GetCounter() != nil {
				return metric.GetCounter().GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}

func TestRecordExecutionOutcomes(t *testing.T) {
	m := NewMetrics()

	m.RecordExecution(&sandbox.ExecutionResult{ExecutionTimeMs: 1})
	m.RecordExecution(&sandbox.ExecutionResult{ErrorKind: sandbox.ErrKindTimeout, ExecutionTimeMs: 100})
	m.RecordExecution(&sandbox.ExecutionResult{ErrorKind: sandbox.ErrKindCompile})
	m.RecordExecution(&sandbox.ExecutionResult{ErrorKind: sandbox.ErrKindRuntime})

	assert.Equal(t, 1.0, gatherValue(t, m, "sandbox_executions_total", map[string]string{"outcome": OutcomeSucceeded}))
	assert.Equal(t, 1.0, gatherValue(t, m, "sandbox_executions_total", map[string]string{"outcome": OutcomeTimedOut}))
	assert.Equal(t, 1.0, gatherValue(t, m, "sandbox_executions_total", map[string]string{"outcome": OutcomeCompileFailed}))
	assert.Equal(t, 1.0, gatherValue(t, m, "sandbox_executions_total", map[string]string{"outcome": OutcomeFailed}))
}

func TestUpdateFromSnapshot(t *testing.T) {
	m := NewMetrics()

	m.UpdateFromSnapshot(sandbox.MetricsSnapshot{
		OmittedExtensions: 3,
		Cache: sandbox.CacheStats{
			Entries: 7,
			Hits:    20,
			Misses:  5,
		},
	})

	assert.Equal(t, 7.0, gatherValue(t, m, "sandbox_cache_entries", nil))
	assert.Equal(t, 20.0, gatherValue(t, m, "sandbox_cache_hits", nil))
	assert.Equal(t, 3.0, gatherValue(t, m, "sandbox_omitted_extensions", nil))
}

func TestRecordValidation(t *testing.T) {
	m := NewMetrics()

	m.RecordValidation(true)
	m.RecordValidation(true)
	m.RecordValidation(false)

	assert.Equal(t, 2.0, gatherValue(t, m, "sandbox_validations_total", map[string]string{"result": "valid"}))
	assert.Equal(t, 1.0, gatherValue(t, m, "sandbox_validations_total", map[string]string{"result": "invalid"}))
}

func TestIndependentRegistries(t *testing.T) {
	// Two collectors must not collide; each owns its registry.
	a := NewMetrics()
	b := NewMetrics()
	a.RecordBatch(5)
	assert.Equal(t, 0.0, gatherValue(t, b, "sandbox_batches_total", nil))
}
