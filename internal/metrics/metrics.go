package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Reasons a notification candidate is dropped.
const (
	DropInvalidScheme = "invalid_scheme"
	DropSenderLookup  = "sender_lookup"
	DropSenderMissing = "sender_missing"
)

var (
	registerOnce sync.Once

	friendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thriveup_friend_requests_total",
			Help: "Total number of friend request attempts",
		},
		[]string{"status"},
	)

	friendAcceptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thriveup_friend_accepts_total",
			Help: "Total number of friend request accept attempts",
		},
		[]string{"status"},
	)

	friendRemovalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thriveup_friend_removals_total",
			Help: "Total number of friend removal attempts",
		},
		[]string{"status"},
	)

	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thriveup_chat_messages_sent_total",
			Help: "Total number of chat message send attempts",
		},
		[]string{"status"},
	)

	notificationsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "thriveup_notifications_created_total",
			Help: "Total number of notifications added to the working set",
		},
	)

	notificationsDismissedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "thriveup_notifications_dismissed_total",
			Help: "Total number of notifications dismissed by opening a chat",
		},
	)

	notificationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thriveup_notifications_dropped_total",
			Help: "Total number of notification candidates dropped",
		},
		[]string{"reason"},
	)

	activeListeners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thriveup_thread_listeners",
			Help: "Number of live per-thread message listeners",
		},
	)
)

// Register adds every collector to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			friendRequestsTotal,
			friendAcceptsTotal,
			friendRemovalsTotal,
			messagesSentTotal,
			notificationsCreatedTotal,
			notificationsDismissedTotal,
			notificationsDroppedTotal,
			activeListeners,
		)
	})
}

func IncFriendRequest(status string) {
	Register()
	friendRequestsTotal.WithLabelValues(status).Inc()
}

func IncFriendAccept(status string) {
	Register()
	friendAcceptsTotal.WithLabelValues(status).Inc()
}

func IncFriendRemoval(status string) {
	Register()
	friendRemovalsTotal.WithLabelValues(status).Inc()
}

func IncMessageSent(status string) {
	Register()
	messagesSentTotal.WithLabelValues(status).Inc()
}

func IncNotificationCreated() {
	Register()
	notificationsCreatedTotal.Inc()
}

func AddNotificationsDismissed(n int) {
	Register()
	notificationsDismissedTotal.Add(float64(n))
}

func IncNotificationDropped(reason string) {
	Register()
	notificationsDroppedTotal.WithLabelValues(reason).Inc()
}

func SetThreadListeners(n int) {
	Register()
	activeListeners.Set(float64(n))
}
