package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReconcileMetrics records reconciliation outcomes by resolution path.
type ReconcileMetrics struct {
	outcomes *prometheus.CounterVec
	orphans  prometheus.Counter
}

// NewReconcileMetrics registers the reconciliation metrics on the provided
// registerer.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	if reg == nil {
		return &ReconcileMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_outcomes",
		Help: "Reconciliation outcomes by status and match path.",
	}, []string{"status", "path"})
	orphans := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_orphans",
		Help: "Webhook events that could not be matched to any payment reference.",
	})
	reg.MustRegister(outcomes, orphans)
	return &ReconcileMetrics{outcomes: outcomes, orphans: orphans}
}

// IncOutcome increments the outcome counter for a status and match path.
func (r *ReconcileMetrics) IncOutcome(status, path string) {
	if r == nil || r.outcomes == nil {
		return
	}
	r.outcomes.WithLabelValues(status, path).Inc()
}

// IncOrphan increments the orphan counter.
func (r *ReconcileMetrics) IncOrphan() {
	if r == nil || r.orphans == nil {
		return
	}
	r.orphans.Inc()
}
