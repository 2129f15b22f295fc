package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.IncrementPolicyCreated("Pending Vetting")
	m.IncrementPolicyCreated("Pending Vetting")
	m.IncrementTransition("accept")
	m.IncrementTransitionRejected("forbidden")
	m.IncrementPaymentRecorded()
	m.IncrementPaymentUnmatched()
	m.ObserveImportRows(7, 3)
	m.ObserveTransition(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PoliciesCreated.WithLabelValues("Pending Vetting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("accept")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransitionsRejected.WithLabelValues("forbidden")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsRecorded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsUnmatched))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("failure")))
}
