package publish

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for publisher calls.
type Metrics struct {
	Published       *prometheus.CounterVec
	Failures        *prometheus.CounterVec
	CircuitRejected *prometheus.CounterVec
	Duration        *prometheus.HistogramVec
	CircuitState    *prometheus.GaugeVec
}

// NewMetrics registers publisher metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_publish_total",
			Help: "Records accepted by the ordering service",
		}, []string{"backend", "topic"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_publish_failures_total",
			Help: "Publish attempts that failed or timed out",
		}, []string{"backend", "topic"}),
		CircuitRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_publish_circuit_rejected_total",
			Help: "Publish attempts rejected while the circuit was open",
		}, []string{"backend"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_publish_duration_seconds",
			Help:    "Latency of publish calls",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend", "topic"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tally_publish_circuit_state",
			Help: "Publisher circuit breaker state (0=closed, 1=open)",
		}, []string{"backend"}),
	}
}

func (m *Metrics) observe(backend string, topic Topic, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(backend, topic.String()).Observe(d.Seconds())
	if err != nil {
		m.Failures.WithLabelValues(backend, topic.String()).Inc()
		return
	}
	m.Published.WithLabelValues(backend, topic.String()).Inc()
}

func (m *Metrics) rejected(backend string) {
	if m == nil {
		return
	}
	m.CircuitRejected.WithLabelValues(backend).Inc()
}

func (m *Metrics) setCircuit(backend string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitState.WithLabelValues(backend).Set(v)
}
