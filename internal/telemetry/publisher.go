// Package telemetry forwards synchronizer events to a RabbitMQ topic
// exchange.
package telemetry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// DefaultExchange is used when no exchange is configured.
const DefaultExchange = "thriveup.events"

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event Envelope) error
	Close() error
}

type RabbitPublisher struct {
	amqpURL  string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
}

func NewRabbitPublisher(amqpURL, exchange string) *RabbitPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &RabbitPublisher{amqpURL: amqpURL, exchange: exchange}
}

// Connect dials the broker and declares the durable topic exchange.
func (p *RabbitPublisher) Connect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := amqp.Dial(p.amqpURL)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	p.conn = conn
	p.channel = ch
	return nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, event Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return amqp.ErrClosed
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    event.EventID,
		Body:         body,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Persistent,
	})
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// NoopPublisher drops every event. Used when no broker is configured.
type NoopPublisher struct {
	logger *zap.Logger
}

func NewNoopPublisher(logger *zap.Logger) *NoopPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopPublisher{logger: logger}
}

func (n *NoopPublisher) Publish(_ context.Context, routingKey string, _ Envelope) error {
	n.logger.Debug("broker not configured, skipping publish", zap.String("routing_key", routingKey))
	return nil
}

func (n *NoopPublisher) Close() error { return nil }
