package aggregator

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/metrics"
)

const stage = "aggregator"

// Consumer feeds validated events into the window. Prefetch is 10 to
// amortize broker round-trips; deliveries are still handled one at a time so
// window state never sees concurrent mutation.
type Consumer struct {
	ch  *amqp.Channel
	agg *Aggregator
	log zerolog.Logger
}

func NewConsumer(ch *amqp.Channel, agg *Aggregator, log zerolog.Logger) *Consumer {
	return &Consumer{ch: ch, agg: agg, log: log}
}

func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(10, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(
		rabbitmq.AggregatorQueue,
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

	c.log.Info().
		Str("queue", rabbitmq.AggregatorQueue).
		Dur("window", c.agg.windowLen).
		Msg("aggregator consuming")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("aggregator shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			start := time.Now()
			metrics.RecordMessageConsumed(stage, d.RoutingKey)
			c.agg.Process(ctx, d.Body)
			metrics.RecordProcessing(stage, time.Since(start))
			// Always ack, even after an internal error: the audit store is
			// the durable record, windows are recomputable.
			if err := d.Ack(false); err != nil {
				c.log.Error().Err(err).Msg("failed to ack delivery")
			}
		}
	}
}
