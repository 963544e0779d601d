package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
		payoutsAccruedTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment recording attempts by system and result (recorded/duplicate/failed).",
		},
		[]string{"system", "result"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_usd_total",
			Help: "Sum of recorded payment amounts in USD.",
		},
		[]string{"system"},
	)

	payoutsAccruedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "referral_payouts_accrued_usd_total",
			Help: "Sum of pending referral payouts created.",
		},
	)
)

func IncPayment(system, result string) {
	paymentsTotal.WithLabelValues(norm(system), norm(result)).Inc()
}

func AddRevenue(system string, usd float64) {
	paymentsRevenueTotal.WithLabelValues(norm(system)).Add(usd)
}

func AddPayoutAccrued(usd float64) {
	payoutsAccruedTotal.Add(usd)
}
