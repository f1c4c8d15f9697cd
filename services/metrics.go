package services

import "github.com/prometheus/client_golang/prometheus"

var (
	compliantDaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_compliant_days_total",
			Help: "Days that transitioned to compliant",
		},
	)
	missionsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_missions_completed_total",
			Help: "Mission instances completed",
		},
	)
	questsFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_quests_finalized_total",
			Help: "Aligner quests finalized",
		},
		[]string{"status"},
	)
	coinsAwardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_coins_awarded_total",
			Help: "Coins appended to the points ledger",
		},
	)
)

// InitMetrics registers the engine metrics. Call this from main.go.
func InitMetrics() {
	prometheus.MustRegister(compliantDaysTotal)
	prometheus.MustRegister(missionsCompletedTotal)
	prometheus.MustRegister(questsFinalizedTotal)
	prometheus.MustRegister(coinsAwardedTotal)
}
