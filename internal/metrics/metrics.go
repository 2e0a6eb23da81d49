// Package metrics holds the Prometheus collectors of the status page core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HealthEventsTotal tracks health events processed per kind
	HealthEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuspage_health_events_total",
			Help: "Total number of health events processed",
		},
		[]string{"kind"},
	)

	// StatusTransitionsTotal tracks service status changes
	StatusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuspage_status_transitions_total",
			Help: "Total number of service status transitions",
		},
		[]string{"from", "to"},
	)

	// IncidentsOpenedTotal tracks incidents opened, automatically or by an operator
	IncidentsOpenedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuspage_incidents_opened_total",
			Help: "Total number of incidents opened",
		},
	)

	// IncidentsResolvedTotal tracks incidents resolved
	IncidentsResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statuspage_incidents_resolved_total",
			Help: "Total number of incidents resolved",
		},
	)

	// NotificationsTotal tracks notification deliveries per result
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statuspage_notifications_total",
			Help: "Total number of subscriber notifications",
		},
		[]string{"result"},
	)

	// NotificationQueueDepth tracks fanout jobs waiting for a worker
	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuspage_notification_queue_depth",
			Help: "Number of fanout jobs waiting in the notification queue",
		},
	)

	// EventProcessingLatency tracks how long a health event takes end to end
	EventProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "statuspage_event_processing_seconds",
			Help:    "Health event processing latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// LiveClients tracks connected live status websocket clients
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statuspage_live_clients",
			Help: "Number of connected live status clients",
		},
	)
)

// Notification results.
const (
	ResultSent    = "sent"
	ResultFailed  = "failed"
	ResultDropped = "dropped"
	ResultPaused  = "paused"
)
