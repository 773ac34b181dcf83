package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes events to a durable RabbitMQ queue.
type AMQPPublisher struct {
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher opens a channel on the connection and declares the
// durable queue it will publish to.
func NewAMQPPublisher(conn *amqp.Connection, queue string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}

	return &AMQPPublisher{ch: ch, queue: queue}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", ev.Type, err)
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    ev.OccurredAt,
			Type:         ev.Type,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}
