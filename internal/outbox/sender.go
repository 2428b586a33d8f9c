// Package outbox delivers broker envelopes at least once. Envelopes are
// queued in the session's SQLite store and drained to the publisher by a
// polling Sender, so events raised while the broker is down are sent once
// it comes back, even after a daemon restart.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/thriveup/internal/store"
	"github.com/matheus3301/thriveup/internal/telemetry"
	"go.uber.org/zap"
)

// Delivery tuning.
const (
	PollInterval = 500 * time.Millisecond
	BatchSize    = 50
	MaxAttempts  = 10
)

// Queue is a telemetry.Publisher that enqueues instead of sending.
type Queue struct {
	db *store.DB
}

// NewQueue creates a queue on db.
func NewQueue(db *store.DB) *Queue {
	return &Queue{db: db}
}

// Publish stores env for delivery under routingKey.
func (q *Queue) Publish(_ context.Context, routingKey string, env telemetry.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return q.db.QueueOutbox(env.EventID, routingKey, body)
}

// Close is a no-op; the store is owned by the caller.
func (q *Queue) Close() error { return nil }

// Sender drains the outbox to a publisher.
type Sender struct {
	db        *store.DB
	publisher telemetry.Publisher
	logger    *zap.Logger
	interval  time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSender creates a sender polling every PollInterval.
func NewSender(db *store.DB, publisher telemetry.Publisher, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		db:        db,
		publisher: publisher,
		logger:    logger,
		interval:  PollInterval,
	}
}

// Start begins polling the outbox for pending envelopes.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox(BatchSize)
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		var env telemetry.Envelope
		if err := json.Unmarshal(entry.Body, &env); err != nil {
			s.logger.Error("dropping undecodable outbox entry", zap.Error(err), zap.String("event_id", entry.EventID))
			_ = s.db.MarkOutboxFailed(entry.ID, err.Error(), 0)
			continue
		}

		if err := s.publisher.Publish(ctx, entry.RoutingKey, env); err != nil {
			s.logger.Warn("failed to deliver event",
				zap.Error(err),
				zap.String("event_id", entry.EventID),
				zap.Int("attempt", entry.Attempts+1))
			if err := s.db.MarkOutboxFailed(entry.ID, err.Error(), MaxAttempts); err != nil {
				s.logger.Error("failed to record delivery failure", zap.Error(err), zap.String("event_id", entry.EventID))
			}
			// The broker is likely down; retry the rest on the next tick.
			return
		}

		if err := s.db.AckOutbox(entry.ID); err != nil {
			s.logger.Error("failed to ack outbox entry", zap.Error(err), zap.String("event_id", entry.EventID))
			continue
		}
		s.logger.Debug("event delivered", zap.String("event_id", entry.EventID), zap.String("routing_key", entry.RoutingKey))
	}
}
