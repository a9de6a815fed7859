// Package eventbus publishes outbound events and dead-lettered CDC
// envelopes to RabbitMQ, grounded on the teacher's
// components/consumer/internal/adapters/rabbitmq/producer.rabbitmq.go
// (ProducerRepository with ProducerDefault(ctx, exchange, key, message)).
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cebartling/orderflow/internal/telemetry"
)

// Publisher is the narrow contract both the outbox drain loop and the CDC
// dead-letter sink depend on.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close() error
}

// RabbitMQPublisher is an amqp091-go-backed Publisher, reconnecting lazily
// the way the teacher's ProducerRabbitMQRepository does on construction.
type RabbitMQPublisher struct {
	uri string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQPublisher dials uri and opens a channel.
func NewRabbitMQPublisher(uri string) (*RabbitMQPublisher, error) {
	p := &RabbitMQPublisher{uri: uri}
	if err := p.connect(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p *RabbitMQPublisher) connect() error {
	conn, err := amqp.Dial(p.uri)
	if err != nil {
		return fmt.Errorf("eventbus: dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()

		return fmt.Errorf("eventbus: open channel: %w", err)
	}

	p.conn = conn
	p.channel = ch

	return nil
}

// Publish sends body to exchange/routingKey, reconnecting once if the
// channel was found closed.
func (p *RabbitMQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	logger := telemetry.LoggerFromContext(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil || p.channel.IsClosed() {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err := p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		logger.Errorw("failed to publish message", "exchange", exchange, "routingKey", routingKey, "error", err)

		return fmt.Errorf("eventbus: publish: %w", err)
	}

	return nil
}

// Close tears down the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
	}

	if p.conn != nil {
		return p.conn.Close()
	}

	return nil
}

// DeadLetterSink adapts Publisher to cdc.DeadLetterSink (spec.md §4.10).
type DeadLetterSink struct {
	Publisher  Publisher
	Exchange   string
	RoutingKey string
}

type deadLetterMessage struct {
	Reason      string `json:"reason"`
	RawEnvelope string `json:"raw_envelope"`
}

// Publish sends the raw envelope and failure reason to the dead-letter
// exchange. The raw envelope is carried as a string field rather than
// embedded JSON since decode failures mean raw isn't guaranteed to be
// valid JSON.
func (d *DeadLetterSink) Publish(ctx context.Context, raw []byte, reason string) error {
	body, err := json.Marshal(deadLetterMessage{Reason: reason, RawEnvelope: string(raw)})
	if err != nil {
		return fmt.Errorf("eventbus: marshal dead-letter message: %w", err)
	}

	return d.Publisher.Publish(ctx, d.Exchange, d.RoutingKey, body)
}
