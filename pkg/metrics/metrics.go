package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbot_ticks_total",
			Help: "Total number of reconciliation ticks executed",
		},
	)

	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbot_rpc_calls_total",
			Help: "Total number of remote RPC calls by operation and status",
		},
		[]string{"operation", "status"},
	)

	RPCCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "farmbot_rpc_call_duration_seconds",
			Help:    "Remote RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RPCRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbot_rpc_retries_total",
			Help: "Total number of retried RPC attempts",
		},
	)

	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbot_actions_total",
			Help: "Total number of farm actions by kind and status",
		},
		[]string{"action", "status"},
	)

	SlotsHarvestedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbot_slots_harvested_total",
			Help: "Total number of slots harvested",
		},
	)

	SlotsPlantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbot_slots_planted_total",
			Help: "Total number of slots planted",
		},
	)

	SlotsBoostedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "farmbot_slots_boosted_total",
			Help: "Total number of boosters applied to slots",
		},
	)

	ItemsPurchasedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbot_items_purchased_total",
			Help: "Total number of consumables purchased by item key",
		},
		[]string{"item"},
	)

	EarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "farmbot_earnings_total",
			Help: "Cumulative harvest earnings by currency",
		},
		[]string{"currency"},
	)

	BotUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "farmbot_uptime_seconds",
			Help: "Time since the bot started in seconds",
		},
	)

	BotInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "farmbot_info",
			Help: "Bot build information",
		},
		[]string{"version", "run_id"},
	)
)

func RecordRPCCall(operation, status string, duration float64) {
	RPCCallsTotal.WithLabelValues(operation, status).Inc()
	RPCCallDuration.WithLabelValues(operation).Observe(duration)
}

func RecordAction(action, status string) {
	ActionsTotal.WithLabelValues(action, status).Inc()
}
