package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for IssuanceTotal.
const (
	OutcomeIssued    = "issued"
	OutcomeReused    = "reused"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Metrics provides observability for the attestation module.
type Metrics struct {
	IssuanceTotal      *prometheus.CounterVec
	IssuanceDuration   prometheus.Histogram
	LockWaitDuration   prometheus.Histogram
	RevocationsTotal   prometheus.Counter
	VerificationsTotal *prometheus.CounterVec
}

// New registers attestation metrics on reg. A nil registerer uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		IssuanceTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_issuance_total",
			Help: "Attestation issuance requests by outcome",
		}, []string{"outcome"}),
		IssuanceDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestor_issuance_duration_seconds",
			Help:    "Duration of Issue including lock wait, signing and persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		LockWaitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestor_issuance_lock_wait_seconds",
			Help:    "Time spent waiting for the per-address issuance lock",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		RevocationsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "attestor_revocations_total",
			Help: "Total number of credentials revoked by operators",
		}),
		VerificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_signature_checks_total",
			Help: "Off-chain signature pre-checks by result",
		}, []string{"valid"}),
	}
}

func (m *Metrics) IncrementIssuance(outcome string) {
	if m == nil {
		return
	}
	m.IssuanceTotal.WithLabelValues(outcome).Inc()
}

// ObserveIssuance records the duration of an Issue call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIssuance(start time.Time) {
	if m == nil {
		return
	}
	m.IssuanceDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitDuration.Observe(d.Seconds())
}

func (m *Metrics) IncrementRevocation() {
	if m == nil {
		return
	}
	m.RevocationsTotal.Inc()
}

func (m *Metrics) IncrementVerification(valid bool) {
	if m == nil {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	m.VerificationsTotal.WithLabelValues(label).Inc()
}
