package telemetry

import (
	"time"

	"github.com/google/uuid"
)

const envelopeVersion = "v1"

// Config identifies the publishing daemon in every envelope.
type Config struct {
	Service string
	Session string
	UserID  string
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	Version    string `json:"version"`
	OccurredAt string `json:"occurred_at"`
	Service    string `json:"service"`
	Session    string `json:"session"`
	UserID     string `json:"user_id,omitempty"`
	Payload    any    `json:"payload"`
}

// NewEnvelope wraps payload for an event of the given type.
func NewEnvelope(cfg Config, eventType string, occurredAt time.Time, payload any) Envelope {
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Version:    envelopeVersion,
		OccurredAt: occurredAt.UTC().Format(time.RFC3339Nano),
		Service:    cfg.Service,
		Session:    cfg.Session,
		UserID:     cfg.UserID,
		Payload:    payload,
	}
}
