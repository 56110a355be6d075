package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/markxplorer969/hyuuxapi-sub001/internal/core"
)

// AMQPSink publishes events as persistent JSON messages to a durable RabbitMQ queue.
type AMQPSink struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPSink dials RabbitMQ and declares the queue.
func NewAMQPSink(url, queue string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	return &AMQPSink{conn: conn, channel: ch, queue: queue}, nil
}

func (a *AMQPSink) Name() string { return "rabbitmq" }

func (a *AMQPSink) Send(_ context.Context, event core.Event) error {
	msg, err := publishingFor(event)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channel.Publish(
		"",      // exchange
		a.queue, // routing key (queue name)
		false,   // mandatory
		false,   // immediate
		msg,
	)
}

func publishingFor(event core.Event) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Type:         string(event.Type),
		Timestamp:    event.At,
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}, nil
}

// Close closes the RabbitMQ channel and connection.
func (a *AMQPSink) Close() error {
	var lastErr error
	if a.channel != nil {
		if err := a.channel.Close(); err != nil {
			lastErr = err
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
