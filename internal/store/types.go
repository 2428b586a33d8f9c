package store

// Outbox statuses.
const (
	OutboxQueued = "queued"
	OutboxFailed = "failed"
)

// OutboxEntry is an event waiting to be delivered to the broker.
type OutboxEntry struct {
	ID           int64
	EventID      string
	RoutingKey   string
	Body         []byte
	Status       string
	Attempts     int
	ErrorMessage string
}
