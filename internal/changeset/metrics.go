package changeset

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/factset/internal/ir"
)

const (
	// MetricCommitsTotal counts commits by result.
	MetricCommitsTotal = "commits_total"
	// MetricOperationsTotal counts audit operations written, by action type.
	MetricOperationsTotal = "operations_total"
	// MetricCommitDuration observes the time spent in the store transaction.
	MetricCommitDuration = "commit_duration_seconds"

	metricsNamespace = "factset"
)

// Commit results used as the "result" label.
const (
	ResultCommitted = "committed"
	ResultAborted   = "aborted"
	ResultFailed    = "failed"
)

// Metrics holds the applier's collectors.
type Metrics struct {
	Commits    *prometheus.CounterVec
	Operations *prometheus.CounterVec
	Duration   prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      MetricCommitsTotal,
			Help:      "Changeset commits by result.",
		}, []string{"result"}),
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      MetricOperationsTotal,
			Help:      "Operations written to the audit log by action type.",
		}, []string{"action"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      MetricCommitDuration,
			Help:      "Time spent committing a changeset.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) observe(result string, ops []ir.Operation) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(result).Inc()
	for _, op := range ops {
		m.Operations.WithLabelValues(string(op.ActionType)).Inc()
	}
}
