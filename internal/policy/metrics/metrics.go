package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for policy onboarding: intake outcomes,
// lifecycle transitions, ledger activity and bulk imports.
type Metrics struct {
	PoliciesCreated     *prometheus.CounterVec
	ValidationFailures  prometheus.Counter
	Transitions         *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
	PaymentsRecorded    prometheus.Counter
	PaymentsUnmatched   prometheus.Counter
	ImportRows          *prometheus.CounterVec
	ValidateDuration    prometheus.Histogram
	TransitionDuration  prometheus.Histogram
	ImportDuration      prometheus.Histogram
}

// New registers the policy metrics with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the policy metrics with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PoliciesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policydesk_policies_created_total",
			Help: "Policies created, by starting onboarding status",
		}, []string{"status"}),
		ValidationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "policydesk_application_validation_failures_total",
			Help: "Applications rejected by intake validation",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policydesk_lifecycle_transitions_total",
			Help: "Lifecycle events applied, by event",
		}, []string{"event"}),
		TransitionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policydesk_lifecycle_transitions_rejected_total",
			Help: "Lifecycle events rejected, by error code",
		}, []string{"code"}),
		PaymentsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "policydesk_payments_recorded_total",
			Help: "Payments matched to a bill",
		}),
		PaymentsUnmatched: f.NewCounter(prometheus.CounterOpts{
			Name: "policydesk_payments_unmatched_total",
			Help: "Payments rejected because no unpaid bill matched",
		}),
		ImportRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "policydesk_import_rows_total",
			Help: "Bulk import rows processed, by outcome",
		}, []string{"outcome"}),
		ValidateDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "policydesk_validate_duration_seconds",
			Help:    "Duration of application validation",
			Buckets: durationBuckets,
		}),
		TransitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "policydesk_transition_duration_seconds",
			Help:    "Duration of lifecycle transitions including persistence",
			Buckets: durationBuckets,
		}),
		ImportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "policydesk_import_duration_seconds",
			Help:    "Duration of bulk import batches",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncrementPolicyCreated(status string) {
	m.PoliciesCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementValidationFailure() {
	m.ValidationFailures.Inc()
}

func (m *Metrics) IncrementTransition(event string) {
	m.Transitions.WithLabelValues(event).Inc()
}

func (m *Metrics) IncrementTransitionRejected(code string) {
	m.TransitionsRejected.WithLabelValues(code).Inc()
}

func (m *Metrics) IncrementPaymentRecorded() {
	m.PaymentsRecorded.Inc()
}

func (m *Metrics) IncrementPaymentUnmatched() {
	m.PaymentsUnmatched.Inc()
}

// ObserveImportRows records the outcome counts of one batch.
func (m *Metrics) ObserveImportRows(succeeded, failed int) {
	m.ImportRows.WithLabelValues("success").Add(float64(succeeded))
	m.ImportRows.WithLabelValues("failure").Add(float64(failed))
}

// ObserveValidate records the duration of a validation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveValidate(start time.Time) {
	m.ValidateDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveImport(start time.Time) {
	m.ImportDuration.Observe(time.Since(start).Seconds())
}
