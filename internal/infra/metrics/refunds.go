package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		refundsTotal,
		clawbacksTotal,
		creditReclaimShortfall,
	)
}

var (
	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_refunds_total",
			Help: "Refund workflow transitions by action (submitted/approved/rejected/cancel_failed).",
		},
		[]string{"action"},
	)

	clawbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_clawbacks_total",
			Help: "Platform-initiated refunds by result (applied/unknown/already_handled).",
		},
		[]string{"result"},
	)

	// Credits that could not be reclaimed because the account had already spent them.
	creditReclaimShortfall = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlement_credit_reclaim_shortfall_total",
			Help: "Credits owed back by clawbacks that the balance could not cover.",
		},
	)
)

func IncRefund(action string) {
	refundsTotal.WithLabelValues(norm(action)).Inc()
}

func IncClawback(result string) {
	clawbacksTotal.WithLabelValues(norm(result)).Inc()
}

func AddCreditShortfall(n int64) {
	if n > 0 {
		creditReclaimShortfall.Add(float64(n))
	}
}
