package bus

import "time"

// Event kinds published by the sync core.
const (
	KindNotificationCreated   = "notification.created"
	KindNotificationDismissed = "notification.dismissed"
	KindStateChanged          = "synchronizer.state_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
