package queue

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Queue decouples publishing dispatch work from running it. Payloads
// are JSON-encoded bytes so implementations can cross process
// boundaries.
type Queue interface {
	Publish(topic string, body []byte) error
	Subscribe(topic string, handler func(body []byte) error) error
}

// InMemoryQueue is the single-process implementation with retry.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(body []byte) error
	logger   *slog.Logger
}

func NewInMemoryQueue(logger *slog.Logger) *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(body []byte) error),
		logger:   logger,
	}
}

type job struct {
	body       []byte
	retryCount int
	maxRetries int
}

// Publish sends a message to all subscribers of the topic.
func (q *InMemoryQueue) Publish(topic string, body []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{body: body, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(topic, handler, j)
	}
	return nil
}

// processJob runs the handler with bounded retries and backoff.
func (q *InMemoryQueue) processJob(topic string, handler func(body []byte) error, j job) {
	for {
		err := handler(j.body)
		if err == nil {
			return
		}

		j.retryCount++
		q.logger.Warn("queue job failed",
			slog.String("topic", topic),
			slog.Int("attempt", j.retryCount),
			slog.Any("error", err),
		)

		if j.retryCount > j.maxRetries {
			q.logger.Error("queue job permanently failed",
				slog.String("topic", topic),
				slog.Int("attempts", j.retryCount),
			)
			return
		}

		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic.
func (q *InMemoryQueue) Subscribe(topic string, handler func(body []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
