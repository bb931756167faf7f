// Package metrics defines and registers the custom Prometheus metrics of the
// realtime service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default registry on package init through
// promauto; HTTP request metrics come from the echoprometheus middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "realtime"

// ── Socket metrics ────────────────────────────────────────────────────────────

// ConnectionsActive tracks the number of sockets open on this instance.
var ConnectionsActive = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ws_connections_active",
		Help:      "Current number of open WebSocket connections on this instance.",
	},
)

// SocketEventsTotal counts inbound socket events.
// Labels:
//   - event:  the event name (e.g. "sendMessage")
//   - result: "ok" or "error"
var SocketEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_events_total",
		Help:      "Total number of inbound socket events, by event and result.",
	},
	[]string{"event", "result"},
)

// SlowConsumersTotal counts sockets dropped because their send queue was full.
var SlowConsumersTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ws_slow_consumers_total",
		Help:      "Total number of sockets dropped due to a full send queue.",
	},
)

// ── Chat metrics ──────────────────────────────────────────────────────────────

// RoomAccessDeniedTotal counts failed room authorizations.
// Label:
//   - kind: room kind ("group", "private", ...) or "invalid"
var RoomAccessDeniedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_access_denied_total",
		Help:      "Total number of rejected room joins, sends and reads.",
	},
	[]string{"kind"},
)

// MessagesSentTotal counts persisted chat messages.
// Label:
//   - kind: room kind of the target room
var MessagesSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "Total number of chat messages persisted, by room kind.",
	},
	[]string{"kind"},
)

// MessagesRejectedTotal counts sends refused before persistence.
// Label:
//   - reason: "rate_limited", "duplicate", "invalid"
var MessagesRejectedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_rejected_total",
		Help:      "Total number of chat messages refused before persistence.",
	},
	[]string{"reason"},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsCreatedTotal counts notification rows written.
// Label:
//   - type: notification type (e.g. "chat", "system")
var NotificationsCreatedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_created_total",
		Help:      "Total number of notifications written, by type.",
	},
	[]string{"type"},
)

// NotificationsFailedTotal counts notification rows that could not be written.
var NotificationsFailedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_failed_total",
		Help:      "Total number of notifications that failed to be written, by type.",
	},
	[]string{"type"},
)

// FanoutQueueDepth tracks pending fan-out jobs per dispatcher worker.
var FanoutQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "fanout_queue_depth",
		Help:      "Current number of fan-out jobs pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// FanoutDuration measures one fan-out job from dequeue to persistence.
var FanoutDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fanout_duration_seconds",
		Help:      "Duration of notification fan-out jobs.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)
