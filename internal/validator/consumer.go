package validator

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/metrics"
)

// Consumer pulls raw events off the validator input queue and runs each one
// through the handler. Prefetch is 1: retry backoff blocks the consumer by
// design, so in-flight work stays bounded to a single delivery.
type Consumer struct {
	ch      *amqp.Channel
	handler *Handler
	log     zerolog.Logger
}

func NewConsumer(ch *amqp.Channel, handler *Handler, log zerolog.Logger) *Consumer {
	return &Consumer{ch: ch, handler: handler, log: log}
}

// Run consumes until the context is canceled or the channel closes. Every
// delivery is acknowledged exactly once, whatever its outcome.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(
		rabbitmq.ValidatorInputQueue,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}

	c.log.Info().Str("queue", rabbitmq.ValidatorInputQueue).Msg("validator consuming")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("validator shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	start := time.Now()
	metrics.RecordMessageConsumed(serviceName, d.RoutingKey)

	outcome := c.handler.Handle(ctx, d.RoutingKey, d.Body)
	metrics.RecordProcessing(serviceName, time.Since(start))

	if err := d.Ack(false); err != nil {
		c.log.Error().Err(err).Msg("failed to ack delivery")
		return
	}
	if outcome == OutcomeForwarded {
		c.log.Info().Str("routing_key", d.RoutingKey).Msg("valid event forwarded")
	}
}
