package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"frame-worker/internal/domain/model"
	"frame-worker/internal/domain/ports/adapter"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	_ adapter.JobPublisher          = (*Publisher)(nil)
	_ adapter.NotificationPublisher = (*Publisher)(nil)
)

// Publisher sends persistent JSON messages through the default exchange.
// An amqp channel is not safe for concurrent publishes, hence the mutex.
type Publisher struct {
	mu      sync.Mutex
	channel *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	for _, q := range []string{JobQueue, NotificationQueue} {
		if err := declareQueue(ch, q); err != nil {
			_ = ch.Close()
			return nil, err
		}
	}
	return &Publisher{channel: ch}, nil
}

func (p *Publisher) PublishJob(ctx context.Context, msg model.JobMessage, attempt int) error {
	return p.publish(ctx, JobQueue, msg, amqp.Table{RetryCountHeader: int32(attempt)})
}

func (p *Publisher) PublishNotification(ctx context.Context, msg model.NotificationMessage) error {
	return p.publish(ctx, NotificationQueue, msg, nil)
}

func (p *Publisher) publish(ctx context.Context, queue string, v any, headers amqp.Table) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", queue, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.channel.Close() }
