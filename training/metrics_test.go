package training

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordProgress(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.setPhase(PhaseCycling, 12)
	m.observeSimulator(2.5, 0.75, 0.001)
	m.observeSimulator(2.4, 0.8, 0.001)
	m.observeGenerator(3.0, 0.02, 0.5, 1.0, 0.004)
	m.observeTest(2.0, 0.25, 0.5)
	m.observeCheckpoint()

	assert.Equal(t, 12.0, testutil.ToFloat64(m.globalStep))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.phase.WithLabelValues("cycling")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.phase.WithLabelValues("warming_up")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.steps.WithLabelValues("simulator")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.steps.WithLabelValues("generator")))
	assert.Equal(t, 0.8, testutil.ToFloat64(m.accuracy))
	assert.Equal(t, 0.02, testutil.ToFloat64(m.loss.WithLabelValues("generator_penalty")))
	assert.Equal(t, 0.25, testutil.ToFloat64(m.foolRate.WithLabelValues("test", "tfr")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpoints))

	n, err := testutil.GatherAndCount(reg, "advnet_train_global_step", "advnet_metrics_fool_rate")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)
	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.setPhase(PhaseDone, 1)
		m.observeSimulator(1, 1, 1)
		m.observeGenerator(1, 1, 1, 1, 1)
		m.observeTest(1, 1, 1)
		m.observeCheckpoint()
	})
}
