// File: internal/infra/metrics/metrics.go
package metrics

import (
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		confirmationsTotal,
		processorLatencyMs,
	)
}

var (
	// result: applied|duplicate|rejected|unavailable|invalid_amount|invalid_intent|error
	confirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_confirmations_total",
			Help: "Purchase confirmations by channel and outcome.",
		},
		[]string{"channel", "result"},
	)

	processorLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_processor_latency_ms",
			Help:    "Payment processor call latency distribution in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000},
		},
		[]string{"processor", "op", "success"},
	)
)

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// -------- Confirmation helpers --------

func IncConfirmation(channel, result string) {
	confirmationsTotal.WithLabelValues(norm(channel), norm(result)).Inc()
}

// ObserveProcessorCall records one confirm/charge/cancel round trip.
func ObserveProcessorCall(processor, op string, latencyMs int64, success bool) {
	processorLatencyMs.WithLabelValues(norm(processor), norm(op), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
