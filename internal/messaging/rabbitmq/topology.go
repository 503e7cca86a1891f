// Package rabbitmq owns the broker topology shared by every pipeline stage
// and the small publishing/consuming helpers built on amqp091-go. Every
// service declares the topology idempotently on connect, so startup order
// does not matter.
package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/domain"
)

const (
	EventsExchange     = "events_exchange"
	ProcessingExchange = "processing_exchange"
	AnalyticsExchange  = "analytics_exchange"
	DLQExchange        = "dlq_exchange"

	ValidatorInputQueue = "validator_input_queue"
	AggregatorQueue     = "aggregator_queue"
	AuditQueue          = "audit_queue"
	AuditMetricsQueue   = "audit_metrics_queue"

	DeadLetterRoutingKey = "deadletter.validation"
	SummaryRoutingKey    = "analytics.window"
	MetricsRoutingKey    = "metrics.daily"
)

const (
	reconnectDelay = 5 * time.Second
	heartbeat      = 60 * time.Second
)

// Dial connects to the broker, retrying every 5 seconds until it succeeds or
// the context is canceled. The long heartbeat keeps slow consumers (audit
// commits, validator backoff sleeps) from being flagged dead.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*amqp.Connection, error) {
	for {
		conn, err := amqp.DialConfig(url, amqp.Config{Heartbeat: heartbeat})
		if err == nil {
			return conn, nil
		}
		log.Warn().Err(err).Str("url", url).Msg("broker not ready, retrying in 5s")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

// DeclareTopology declares the four exchanges, the four named durable queues,
// and their bindings. Safe to call from every service.
func DeclareTopology(ch *amqp.Channel) error {
	exchanges := []struct {
		name, kind string
	}{
		{EventsExchange, "topic"},
		{ProcessingExchange, "topic"},
		{AnalyticsExchange, "topic"},
		{DLQExchange, "direct"},
	}
	for _, ex := range exchanges {
		if err := ch.ExchangeDeclare(ex.name, ex.kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	queues := []string{ValidatorInputQueue, AggregatorQueue, AuditQueue, AuditMetricsQueue}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	for _, rk := range domain.Sources {
		if err := ch.QueueBind(ValidatorInputQueue, rk, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", ValidatorInputQueue, rk, err)
		}
	}
	if err := ch.QueueBind(AggregatorQueue, "#", ProcessingExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", AggregatorQueue, err)
	}
	if err := ch.QueueBind(AuditQueue, "#", ProcessingExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", AuditQueue, err)
	}
	if err := ch.QueueBind(AuditMetricsQueue, MetricsRoutingKey, AnalyticsExchange, false, nil); err != nil {
		return fmt.Errorf("bind %s: %w", AuditMetricsQueue, err)
	}
	return nil
}
