package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends persistent JSON messages to a topic exchange. Stage
// handlers depend on this interface so tests can swap in a fake.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error
}

// ChannelPublisher publishes on a live AMQP channel. Deliveries are
// persistent so the broker keeps them across restarts.
type ChannelPublisher struct {
	ch *amqp.Channel
}

func NewChannelPublisher(ch *amqp.Channel) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	err := p.ch.PublishWithContext(
		ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}
