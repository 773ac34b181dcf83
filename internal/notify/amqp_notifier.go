package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type smsMessage struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// AMQPNotifier hands confirmation SMS messages to a durable queue consumed
// by the external SMS gateway worker.
type AMQPNotifier struct {
	ch    *amqp.Channel
	queue string
}

func NewAMQPNotifier(conn *amqp.Connection, queue string) (*AMQPNotifier, error) {
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

	return &AMQPNotifier{ch: ch, queue: queue}, nil
}

func (n *AMQPNotifier) BookingConfirmed(ctx context.Context, c BookingConfirmation) error {
	body, err := json.Marshal(smsMessage{
		Phone:   c.Phone,
		Message: smsText(c),
	})
	if err != nil {
		return fmt.Errorf("marshal sms message: %w", err)
	}

	err = n.ch.PublishWithContext(ctx,
		"",      // default exchange
		n.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish sms notification: %w", err)
	}
	return nil
}

func (n *AMQPNotifier) Close() error {
	return n.ch.Close()
}
