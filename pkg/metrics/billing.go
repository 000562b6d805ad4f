package metrics

import "github.com/prometheus/client_golang/prometheus"

// BillingMetrics tracks coverage decisions, renewal outcomes, sync delivery,
// and the unresolved pending-charge backlog.
type BillingMetrics struct {
	coverage       *prometheus.CounterVec
	renewals       *prometheus.CounterVec
	syncJobs       *prometheus.CounterVec
	pendingBacklog prometheus.Gauge
}

// NewBillingMetrics registers the billing metrics on reg. A nil registerer
// yields a no-op recorder.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	coverage := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "learnbill_coverage_total",
		Help: "Coverage decisions by requested mode and outcome.",
	}, []string{"mode", "outcome"})
	renewals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "learnbill_renewals_total",
		Help: "Subscription renewal attempts by outcome.",
	}, []string{"outcome"})
	syncJobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "learnbill_sync_jobs_total",
		Help: "Accounting sync job attempts by outcome.",
	}, []string{"outcome"})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "learnbill_pending_charges_backlog",
		Help: "PENDING charges older than the configured backlog age.",
	})
	reg.MustRegister(coverage, renewals, syncJobs, pending)
	return &BillingMetrics{
		coverage:       coverage,
		renewals:       renewals,
		syncJobs:       syncJobs,
		pendingBacklog: pending,
	}
}

func (b *BillingMetrics) IncCoverage(mode, outcome string) {
	if b == nil || b.coverage == nil {
		return
	}
	b.coverage.WithLabelValues(normalizeLabel(mode), normalizeLabel(outcome)).Inc()
}

// AddRenewals adds n to the counter for outcome. Zero is ignored.
func (b *BillingMetrics) AddRenewals(outcome string, n int) {
	if b == nil || b.renewals == nil || n <= 0 {
		return
	}
	b.renewals.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

func (b *BillingMetrics) IncSyncJob(outcome string) {
	if b == nil || b.syncJobs == nil {
		return
	}
	b.syncJobs.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (b *BillingMetrics) SetPendingBacklog(n int) {
	if b == nil || b.pendingBacklog == nil {
		return
	}
	b.pendingBacklog.Set(float64(n))
}
