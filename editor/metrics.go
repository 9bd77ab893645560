package editor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts and times the remote calls issued by an Orchestrator.
// A nil *Metrics records nothing.
type Metrics struct {
	calls   *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewMetrics registers the editor metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bpm_editor_remote_calls_total",
			Help: "Remote store calls issued by the diagram editor",
		}, []string{"family", "op", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bpm_editor_remote_call_duration_seconds",
			Help:    "Latency of remote store calls issued by the diagram editor",
			Buckets: prometheus.DefBuckets,
		}, []string{"family", "op"}),
	}
}

func (m *Metrics) observe(family, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(family, op, outcome).Inc()
	m.latency.WithLabelValues(family, op).Observe(time.Since(start).Seconds())
}
