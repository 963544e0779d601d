package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		activationsTotal,
		codesCreatedTotal,
		tokensIssuedTotal,
	)
}

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_activation_results_total",
			Help: "Activate/Check calls by operation and outcome.",
		},
		[]string{"op", "outcome"}, // outcome: 'ok' or one of the error codes
	)

	codesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_codes_created_total",
			Help: "License codes minted, split by kind.",
		},
		[]string{"kind"}, // 'timed', 'developer'
	)

	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "license_offline_tokens_total",
			Help: "Offline token issue attempts by result.",
		},
		[]string{"result"},
	)
)

func IncActivation(op, outcome string) {
	if outcome == "" {
		outcome = "ok"
	}
	activationsTotal.WithLabelValues(norm(op), norm(outcome)).Inc()
}

func IncCodesCreated(developer bool, n int) {
	kind := "timed"
	if developer {
		kind = "developer"
	}
	codesCreatedTotal.WithLabelValues(kind).Add(float64(n))
}

func IncTokenIssued(result string) {
	tokensIssuedTotal.WithLabelValues(norm(result)).Inc()
}
