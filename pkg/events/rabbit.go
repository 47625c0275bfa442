package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitPublisher publishes workflow events to a durable topic exchange.
type RabbitPublisher struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	logger   *zap.Logger
}

var _ Publisher = (*RabbitPublisher)(nil)

// NewRabbitPublisher connects to the broker and declares the exchange.
func NewRabbitPublisher(url, exchange string, logger *zap.Logger) (*RabbitPublisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitPublisher{
		conn:     conn,
		channel:  ch,
		exchange: exchange,
		logger:   logger.Named("events"),
	}, nil
}

// Publish sends the event with its type as the routing key. Broker failures
// are logged and dropped so the workflow state machine is never blocked on
// the broker.
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event",
			zap.String("type", event.Type),
			zap.Error(err))
		return
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		event.Type, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
	if err != nil {
		p.logger.Error("failed to publish event",
			zap.String("type", event.Type),
			zap.String("project_id", event.ProjectID.String()),
			zap.Error(err))
		return
	}

	p.logger.Debug("published event",
		zap.String("type", event.Type),
		zap.String("project_id", event.ProjectID.String()))
}

// Close releases the channel and connection.
func (p *RabbitPublisher) Close() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
