package dashboard

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/metrics"
)

const stage = "dashboard"

// Consumer binds an anonymous exclusive queue to the analytics exchange and
// keeps the snapshot current. The queue dies with the connection: summaries
// published while the dashboard is down are lost, which is fine for a live
// view.
type Consumer struct {
	ch   *amqp.Channel
	snap *Snapshot
	log  zerolog.Logger
}

func NewConsumer(ch *amqp.Channel, snap *Snapshot, log zerolog.Logger) *Consumer {
	return &Consumer{ch: ch, snap: snap, log: log}
}

func (c *Consumer) Run(ctx context.Context) error {
	q, err := c.ch.QueueDeclare(
		"",    // broker-named
		false, // durable
		false, // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	if err := c.ch.QueueBind(q.Name, "#", rabbitmq.AnalyticsExchange, false, nil); err != nil {
		return err
	}

	deliveries, err := c.ch.Consume(
		q.Name,
		"",   // consumer tag
		true, // auto-ack: a lost summary is just a stale snapshot
		true, // exclusive
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.log.Info().Str("queue", q.Name).Msg("dashboard consuming")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("dashboard consumer shutting down")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return amqp.ErrClosed
			}
			metrics.RecordMessageConsumed(stage, d.RoutingKey)
			c.handleBody(d.Body)
		}
	}
}

// handleBody stores window summaries and ignores everything else flowing
// through the analytics exchange.
func (c *Consumer) handleBody(body []byte) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		c.log.Warn().Err(err).Msg("dropping non-JSON analytics message")
		return
	}
	if probe.Type != "window_summary" {
		return
	}
	c.snap.Store(body)
	c.log.Debug().Msg("snapshot updated")
}
