package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jonathan/pain-assessment/internal/types"
)

// Submission modes and outcomes used as metric labels.
const (
	modeStream = "stream"
	modeSync   = "sync"

	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeFailed  = "failed"
)

type metrics struct {
	submissions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	urgency     *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "painmap",
			Name:      "submissions_total",
			Help:      "Assessment submissions by mode and outcome.",
		}, []string{"mode", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "painmap",
			Name:      "submission_duration_seconds",
			Help:      "Time from request to stored summary.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"mode"}),
		urgency: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "painmap",
			Name:      "urgency_total",
			Help:      "Stored assessments by urgency tier.",
		}, []string{"tier"}),
	}
}

func (m *metrics) observe(mode, outcome string, start time.Time) {
	m.submissions.WithLabelValues(mode, outcome).Inc()
	if outcome == outcomeSuccess {
		m.duration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

func (m *metrics) recordUrgency(u types.Urgency) {
	m.urgency.WithLabelValues(u.Tier()).Inc()
}
