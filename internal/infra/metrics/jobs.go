package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(renewalsTotal, retentionDeletedTotal) }

var (
	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_renewals_total",
			Help: "Recurring billing attempts by result.",
		},
		[]string{"result"}, // 'renewed', 'downgraded', 'error'
	)

	retentionDeletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retention_deleted_total",
			Help: "Rows removed by the retention sweeper.",
		},
		[]string{"kind"}, // 'purchase', 'intent'
	)
)

func IncRenewal(result string) {
	renewalsTotal.WithLabelValues(norm(result)).Inc()
}

func AddRetentionDeleted(kind string, n int64) {
	if n > 0 {
		retentionDeletedTotal.WithLabelValues(norm(kind)).Add(float64(n))
	}
}
