package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"frame-worker/internal/usecase"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrChannelClosed is returned when the broker closes the delivery stream.
var ErrChannelClosed = errors.New("rabbitmq delivery channel closed")

// Consumer feeds job deliveries to a handler strictly one at a time.
type Consumer struct {
	channel *amqp.Channel
	queue   string
	tag     string
	handler usecase.JobHandler
	log     *zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, tag string, handler usecase.JobHandler, logger *zerolog.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	if err := declareQueue(ch, JobQueue); err != nil {
		_ = ch.Close()
		return nil, err
	}
	// One unacknowledged delivery per consumer.
	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	compLog := logger.With().Str("component", "Consumer").Str("consumer", tag).Logger()
	return &Consumer{
		channel: ch,
		queue:   JobQueue,
		tag:     tag,
		handler: handler,
		log:     &compLog,
	}, nil
}

// Start consumes until ctx is cancelled or the channel closes. A delivery in
// progress when ctx is cancelled still runs to completion and is settled.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		c.tag,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.log.Info().Str("queue", c.queue).Msg("consumer started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("consumer shutting down")
			_ = c.channel.Cancel(c.tag, false)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				c.log.Error().Msg("rabbitmq channel closed")
				return ErrChannelClosed
			}
			c.handle(ctx, msg)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg amqp.Delivery) {
	attempt := RetryCount(msg.Headers)
	decision := c.handler.Handle(context.WithoutCancel(ctx), msg.Body, attempt)

	var err error
	switch decision {
	case usecase.DecisionAck:
		err = msg.Ack(false)
	case usecase.DecisionRequeue:
		err = msg.Nack(false, true)
	case usecase.DecisionReject:
		err = msg.Nack(false, false)
	}
	if err != nil {
		c.log.Error().Err(err).Str("decision", decision.String()).Msg("failed to settle delivery")
	}
}

func (c *Consumer) Close() error { return c.channel.Close() }
