// Package metrics exposes Prometheus collectors for apply runs and the
// remote executor. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/phrazzld/apply-orchestrator/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "apply"

// Submission outcomes.
const (
	SubmissionAccepted          = "accepted"
	SubmissionMissingProfile    = "missing_profile"
	SubmissionIncompleteProfile = "incomplete_profile"
	SubmissionNotConfigured     = "executor_not_configured"
	SubmissionQueueFull         = "queue_full"
	SubmissionError             = "error"
)

// Metrics holds the service's collectors.
type Metrics struct {
	remoteCalls        *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec
	submissions        *prometheus.CounterVec
	stagingFailures    *prometheus.CounterVec
	cancellations      *prometheus.CounterVec
	runsActive         prometheus.Gauge
	runsFinished       *prometheus.CounterVec
}

// MustNewMetrics creates the collectors and registers them with reg,
// panicking on duplicate registration. Tests pass a fresh
// prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "calls_total",
			Help:      "Remote executor calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		remoteCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "call_duration_seconds",
			Help:      "Latency of remote executor calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Apply submissions by outcome.",
		}, []string{"outcome"}),
		stagingFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staging_failures_total",
			Help:      "Artifact staging failures by stage.",
		}, []string{"stage"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancellations_total",
			Help:      "Cancellation requests by outcome.",
		}, []string{"outcome"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Apply runs currently executing in this process.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Apply runs that left a worker, by mirror status.",
		}, []string{"status"}),
	}
	reg.MustRegister(
		m.remoteCalls,
		m.remoteCallDuration,
		m.submissions,
		m.stagingFailures,
		m.cancellations,
		m.runsActive,
		m.runsFinished,
	)
	return m
}

// ObserveRemoteCall implements executor.CallObserver.
func (m *Metrics) ObserveRemoteCall(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(op, outcome).Inc()
	m.remoteCallDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// StagingFailed implements staging.FailureRecorder.
func (m *Metrics) StagingFailed(stage string) {
	if m == nil {
		return
	}
	m.stagingFailures.WithLabelValues(stage).Inc()
}

// CancelOutcome implements cancel.Recorder.
func (m *Metrics) CancelOutcome(outcome string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcome).Inc()
}

// SubmissionOutcome counts one Submit call.
func (m *Metrics) SubmissionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// RunStarted implements task.RunObserver.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runsActive.Inc()
}

// RunFinished implements task.RunObserver.
func (m *Metrics) RunFinished(status domain.MirrorStatus) {
	if m == nil {
		return
	}
	m.runsActive.Dec()
	m.runsFinished.WithLabelValues(string(status)).Inc()
}
