// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "responder"

var (
	// AlertsIngested counts ingested alerts by result (new, duplicate, suppressed)
	AlertsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_ingested_total",
			Help:      "Alerts ingested, by dedup result",
		},
		[]string{"result"},
	)

	// IncidentsCreated counts incidents opened by correlation
	IncidentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incidents_created_total",
			Help:      "Incidents created by the correlation engine",
		},
	)

	// NotificationsTotal counts delivery attempts by channel type and outcome
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery attempts, by channel type and status",
		},
		[]string{"channel_type", "status"},
	)

	// EscalationsFired counts timer fires by outcome (started, advanced, repeated, exhausted, noop)
	EscalationsFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_fired_total",
			Help:      "Escalation timer fires, by outcome",
		},
		[]string{"outcome"},
	)

	// AsyncTasksDropped counts tasks rejected by a full worker queue
	AsyncTasksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_tasks_dropped_total",
			Help:      "Async tasks dropped because the worker queue was full",
		},
	)

	// HTTPRequestDuration observes handler latency by route and status
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
)
