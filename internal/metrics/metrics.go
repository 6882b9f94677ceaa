package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_outbox_events_total",
			Help: "Outbox lifecycle counter by stage",
		},
		[]string{"stage"}, // enqueued|published|retried|dlq
	)

	ConsumerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_consumer_messages_total",
			Help: "Bus consumer counter by outcome and topic",
		},
		[]string{"outcome", "topic"}, // processed|duplicate|malformed
	)

	PushDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_push_deliveries_total",
			Help: "Push delivery attempts by outcome",
		},
		[]string{"outcome"}, // sent|fallback_sent|failed|revoked
	)

	// FanoutDroppedTotal counts swallowed bus publish failures. Fan-out is
	// fire-and-forget past the durability boundary, so these never reach
	// callers; the counter keeps them operator-visible.
	FanoutDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "carelink_fanout_dropped_total",
			Help: "Bus fan-out publishes that failed and were dropped",
		},
	)

	SchedulerAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carelink_scheduler_alerts_total",
			Help: "Missed check-in alerts emitted by kind",
		},
		[]string{"kind"}, // caregiver|dashboard_only
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		OutboxEventsTotal,
		ConsumerMessagesTotal,
		PushDeliveriesTotal,
		FanoutDroppedTotal,
		SchedulerAlertsTotal,
	)
}
