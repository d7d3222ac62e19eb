package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds ingestion and reconciliation metrics.
type Metrics struct {
	TapsTotal          *prometheus.CounterVec
	DuplicateTaps      prometheus.Counter
	TapPublishFailures prometheus.Counter
	ClosesTotal        *prometheus.CounterVec
	CloseDuration      prometheus.Histogram
	AbsenteesMarked    prometheus.Counter
	LateCorrections    prometheus.Counter
	CloseFailures      *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TapsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_taps_total",
			Help: "Accepted presence taps by classified status",
		}, []string{"status"}),
		DuplicateTaps: f.NewCounter(prometheus.CounterOpts{
			Name: "tally_taps_duplicate_total",
			Help: "Taps for a pseudonym already present in the session",
		}),
		TapPublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "tally_taps_publish_failures_total",
			Help: "Recorded taps whose publication failed",
		}),
		ClosesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_session_closes_total",
			Help: "Session closes by outcome (complete, partial, error)",
		}, []string{"outcome"}),
		CloseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tally_session_close_duration_seconds",
			Help:    "Duration of session reconciliation including publication",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
		AbsenteesMarked: f.NewCounter(prometheus.CounterOpts{
			Name: "tally_absentees_marked_total",
			Help: "Absent records published and committed by session closes",
		}),
		LateCorrections: f.NewCounter(prometheus.CounterOpts{
			Name: "tally_late_corrections_total",
			Help: "Absent records superseded by a live tap during the close",
		}),
		CloseFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_close_failures_total",
			Help: "Per-absentee close failures by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordTap(status string) {
	if m == nil {
		return
	}
	m.TapsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.DuplicateTaps.Inc()
}

func (m *Metrics) RecordTapPublishFailure() {
	if m == nil {
		return
	}
	m.TapPublishFailures.Inc()
}

func (m *Metrics) RecordClose(outcome string, d time.Duration, marked, lateCorrections int, failureKinds []string) {
	if m == nil {
		return
	}
	m.ClosesTotal.WithLabelValues(outcome).Inc()
	m.CloseDuration.Observe(d.Seconds())
	m.AbsenteesMarked.Add(float64(marked))
	m.LateCorrections.Add(float64(lateCorrections))
	for _, k := range failureKinds {
		m.CloseFailures.WithLabelValues(k).Inc()
	}
}
