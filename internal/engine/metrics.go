package engine

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfrise_xp_transactions_total",
		Help: "XP ledger calls by source, kind and result.",
	}, []string{"source", "kind", "result"})

	xpGrantedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfrise_xp_granted_total",
		Help: "XP applied by source. Revocations are not subtracted.",
	}, []string{"source"})

	levelUpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selfrise_level_ups_total",
		Help: "Level-ups, split by whether a milestone was reached.",
	}, []string{"milestone"})
)

func observe(kind string, source Source, res *TransactionResult) {
	label := string(source)
	if !source.IsValid() {
		label = "unknown"
	}
	result := "ok"
	if !res.Success {
		result = "failed"
	}
	transactionsTotal.WithLabelValues(label, kind, result).Inc()
	if res.Success && res.XPGained > 0 {
		xpGrantedTotal.WithLabelValues(label).Add(float64(res.XPGained))
	}
	if res.LeveledUp {
		levelUpsTotal.WithLabelValues(strconv.FormatBool(res.MilestoneReached)).Inc()
	}
}
