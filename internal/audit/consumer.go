package audit

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/metrics"
)

const stage = "audit"

// deliveryHandler is the shared shape of the event and metric handlers.
type deliveryHandler interface {
	Handle(ctx context.Context, body []byte, headers amqp.Table) Disposition
}

// Consumer drains one audit queue through one handler. The audit service
// runs two of these on separate channels: events and metrics. Prefetch is 1
// so a requeued delivery comes straight back instead of stalling behind a
// full prefetch buffer.
type Consumer struct {
	ch      *amqp.Channel
	queue   string
	handler deliveryHandler
	log     zerolog.Logger
}

func NewConsumer(ch *amqp.Channel, queue string, handler deliveryHandler, log zerolog.Logger) *Consumer {
	return &Consumer{ch: ch, queue: queue, handler: handler, log: log}
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(
		c.queue,
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

	c.log.Info().Str("queue", c.queue).Msg("audit consuming")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Str("queue", c.queue).Msg("audit consumer shutting down")
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
	metrics.RecordMessageConsumed(stage, d.RoutingKey)

	disposition := c.handler.Handle(ctx, d.Body, d.Headers)
	metrics.RecordProcessing(stage, time.Since(start))

	switch disposition {
	case DispositionRequeue:
		metrics.RecordRequeue(stage, "storage_error")
		if err := d.Nack(false, true); err != nil {
			c.log.Error().Err(err).Msg("failed to nack delivery")
		}
	default:
		if err := d.Ack(false); err != nil {
			c.log.Error().Err(err).Msg("failed to ack delivery")
		}
	}
}
