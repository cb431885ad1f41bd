// Package broker publishes order changes to a RabbitMQ fanout exchange so
// processes outside this one can follow the order lifecycle.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"kitchenbot/pkg/logger"
	"kitchenbot/pkg/models"
)

const Exchange = "order_events"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn *amqp.Connection
	ch   Channel
	mu   sync.Mutex
	log  logger.ILogger
}

// Dial connects to RabbitMQ and declares the exchange.
func Dial(url string, log logger.ILogger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	p, err := NewPublisher(ch, log)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func NewPublisher(ch Channel, log logger.ILogger) (*Publisher, error) {
	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}
	return &Publisher{ch: ch, log: log}, nil
}

// Publish sends one change event. The routing key is informational; the
// exchange fans out to every bound queue.
func (p *Publisher) Publish(ctx context.Context, ev models.ChangeEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.At,
		Type:         string(ev.Type),
		Body:         body,
	}
	if ev.Order != nil {
		msg.MessageId = ev.Order.ID + ":" + ev.At.Format("20060102T150405.000000000")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, Exchange, RoutingKey(ev), false, false, msg); err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.Close(); err != nil {
		p.log.Warning("failed to close rabbitmq channel", logger.Error(err))
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

func RoutingKey(ev models.ChangeEvent) string {
	if ev.Order == nil {
		return "order." + string(ev.Type)
	}
	return "order." + string(ev.Type) + "." + string(ev.Order.Status)
}
