package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAreLabelled(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementIssuance(OutcomeIssued)
	m.IncrementIssuance(OutcomeIssued)
	m.IncrementIssuance(OutcomeReused)
	m.IncrementVerification(true)
	m.IncrementVerification(false)
	m.IncrementVerification(false)
	m.IncrementRevocation()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.IssuanceTotal.WithLabelValues(OutcomeIssued)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IssuanceTotal.WithLabelValues(OutcomeReused)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.VerificationsTotal.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RevocationsTotal))
}

func TestHistogramsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveIssuance(time.Now().Add(-10 * time.Millisecond))
	m.ObserveLockWait(time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.IssuanceDuration)+testutil.CollectAndCount(m.LockWaitDuration))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrementIssuance(OutcomeFailed)
		m.ObserveIssuance(time.Now())
		m.ObserveLockWait(time.Second)
		m.IncrementRevocation()
		m.IncrementVerification(true)
	})
}
