package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Queue names shared with the gateway and the notifier service.
const (
	JobQueue          = "video.process"
	NotificationQueue = "notification.send"
)

// RetryCountHeader carries the 0-based attempt number of a job delivery.
const RetryCountHeader = "x-retry-count"

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	return conn, nil
}

// declareQueue declares a durable, non-exclusive queue on the default exchange.
func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// RetryCount reads the attempt number from delivery headers. Missing or
// unreadable values count as the first attempt.
func RetryCount(h amqp.Table) int {
	v, ok := h[RetryCountHeader]
	if !ok {
		return 0
	}
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case float32:
		n = int64(x)
	case float64:
		n = int64(x)
	default:
		return 0
	}
	if n < 0 {
		return 0
	}
	return int(n)
}
