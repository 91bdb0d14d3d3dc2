package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReconcileTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_reconcile_total",
			Help: "Total accrual reconciliations",
		},
	)
	YieldAccrued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_yield_accrued_total",
			Help: "Currency accrued into pending yield",
		},
	)
	OverheatedReads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mining_overheated_reads_total",
			Help: "Reconciliations that found the rig saturated",
		},
	)
	GrantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_grants_total",
			Help: "One-time grants by type",
		},
		[]string{"type"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_rejections_total",
			Help: "Rejected ledger operations by reason",
		},
		[]string{"reason"},
	)
	PaymentsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_applied_total",
			Help: "Confirmed payments applied by upgrade kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ReconcileTotal)
	prometheus.MustRegister(YieldAccrued)
	prometheus.MustRegister(OverheatedReads)
	prometheus.MustRegister(GrantsTotal)
	prometheus.MustRegister(RejectionsTotal)
	prometheus.MustRegister(PaymentsApplied)
}
