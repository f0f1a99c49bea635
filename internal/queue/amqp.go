package queue

import (
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"
)

// AMQPQueue backs the Queue contract with RabbitMQ, for deployments
// that run dispatch workers in separate processes (cmd/worker).
type AMQPQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

func NewAMQPQueue(url string, logger *slog.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	return &AMQPQueue{conn: conn, channel: ch, logger: logger}, nil
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.channel.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
}

func (q *AMQPQueue) Publish(topic string, body []byte) error {
	if _, err := q.declare(topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}

	return q.channel.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Subscribe consumes the topic with manual acks. Failed deliveries are
// requeued up to maxRedeliveries, then dropped with an error log.
func (q *AMQPQueue) Subscribe(topic string, handler func(body []byte) error) error {
	const maxRedeliveries = 3

	if _, err := q.declare(topic); err != nil {
		return fmt.Errorf("declare queue %s: %w", topic, err)
	}

	msgs, err := q.channel.Consume(
		topic,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume queue %s: %w", topic, err)
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				var retries int32
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retries = v
				}
				if retries < maxRedeliveries && !d.Redelivered {
					d.Nack(false, true)
					continue
				}
				q.logger.Error("dropping message after repeated failures",
					slog.String("topic", topic),
					slog.Any("error", err),
				)
			}
			d.Ack(false)
		}
	}()

	return nil
}

func (q *AMQPQueue) Close() error {
	q.channel.Close()
	return q.conn.Close()
}
