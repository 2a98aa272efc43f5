package metrics

import (
	"testing"
	"time"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveRemoteCall("create_task", "ok", 120*time.Millisecond)
	m.ObserveRemoteCall("create_task", "ok", 80*time.Millisecond)
	m.ObserveRemoteCall("stop_task", "error", time.Second)
	m.StagingFailed("request_slot")
	m.CancelOutcome("duplicate")
	m.SubmissionOutcome(SubmissionAccepted)
	m.RunStarted()
	m.RunStarted()
	m.RunFinished(domain.MirrorStatusCompleted)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues("create_task", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteCalls.WithLabelValues("stop_task", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stagingFailures.WithLabelValues("request_slot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cancellations.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.submissions.WithLabelValues(SubmissionAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runsFinished.WithLabelValues("completed")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["apply_executor_calls_total"])
	assert.True(t, names["apply_executor_call_duration_seconds"])
	assert.True(t, names["apply_runs_active"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRemoteCall("get_task", "ok", time.Millisecond)
		m.StagingFailed("upload")
		m.CancelOutcome("stopped")
		m.SubmissionOutcome(SubmissionError)
		m.RunStarted()
		m.RunFinished(domain.MirrorStatusFailed)
	})
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustNewMetrics(reg)
	assert.Panics(t, func() { MustNewMetrics(reg) })
}
