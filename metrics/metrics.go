package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "social_ws_online_conns",
		Help: "Current open websocket connections.",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "social_online_users",
		Help: "Users with at least one open connection.",
	})

	HubPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_hub_published_total",
		Help: "Events published to hub channels, by event name.",
	}, []string{"event"})
	HubBackpressure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_hub_backpressure_total",
		Help: "Frames dropped because a client outbound queue was full.",
	})

	MessagesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "social_messages_sent_total",
		Help: "Messages persisted through the send path.",
	})
	DeliveryTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_delivery_transitions_total",
		Help: "Delivery state rows moved to a status.",
	}, []string{"status"})

	NotificationsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_notifications_emitted_total",
		Help: "Notifications created, extended or emitted, by type.",
	}, []string{"type"})
	NotificationFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_notification_failures_total",
		Help: "Swallowed notification failures, by stage (persist|push).",
	}, []string{"stage"})

	EventsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_events_dispatched_total",
		Help: "Domain events handed to the dispatcher, by kind.",
	}, []string{"kind"})
	EventHandlerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "social_event_handler_errors_total",
		Help: "Domain event handler failures, by kind.",
	}, []string{"kind"})
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call twice.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OnlineConns, OnlineUsers,
			HubPublished, HubBackpressure,
			MessagesSent, DeliveryTransitions,
			NotificationsEmitted, NotificationFailures,
			EventsDispatched, EventHandlerErrors,
		)
	})
}
