// Package metrics exposes prometheus collectors for the scheduler and the
// intent router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_scheduler_ticks_total",
		Help: "Scheduler ticks by outcome.",
	}, []string{"outcome"})

	DueReminders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "carelink_due_reminders_total",
		Help: "Reminders selected as due across all ticks.",
	})

	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_deliveries_total",
		Help: "Push delivery attempts by kind and outcome.",
	}, []string{"kind", "outcome"})

	RouterEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_router_events_total",
		Help: "Inbound events handled by the router, by type.",
	}, []string{"type"})

	RecognitionCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carelink_recognition_calls_total",
		Help: "AI recognition calls by capability and outcome.",
	}, []string{"capability", "outcome"})

	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "carelink_scheduler_tick_seconds",
		Help:    "Duration of one scheduler scan-and-dispatch cycle.",
		Buckets: prometheus.DefBuckets,
	})
)
