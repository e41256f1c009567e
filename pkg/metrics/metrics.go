package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RetryAttempts counts retries issued by the retry executor.
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asg_retry_attempts_total",
			Help: "Retries issued after a failed attempt",
		},
		[]string{"label"},
	)

	// CollectorPages counts cost pages fetched from the provider.
	CollectorPages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asg_collector_pages_total",
			Help: "Provider cost pages fetched",
		},
		[]string{"team_id"},
	)

	// CostRecordsUpserted counts cost records written to storage.
	CostRecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asg_cost_records_upserted_total",
			Help: "Cost records upserted into storage",
		},
		[]string{"team_id"},
	)

	// PartialCollections counts runs stopped by the page ceiling.
	PartialCollections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asg_collections_partial_total",
			Help: "Collections that stopped at the page ceiling",
		},
		[]string{"team_id"},
	)

	// AlertsSent counts threshold notifications delivered.
	AlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asg_alerts_sent_total",
			Help: "Threshold breaches that resulted in a notification",
		},
		[]string{"threshold_type"},
	)

	// AlertsThrottled counts breaches suppressed by the cooldown.
	AlertsThrottled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asg_alerts_throttled_total",
			Help: "Threshold breaches suppressed by the cooldown",
		},
		[]string{"threshold_type"},
	)

	// CronRuns counts cron guard outcomes.
	CronRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "asg_cron_runs_total",
			Help: "Cron job invocations by outcome",
		},
		[]string{"job", "outcome"},
	)
)
