// Package validator implements the first pipeline stage: schema validation
// of raw events, retry with exponential backoff on transient errors, and
// dead-letter routing for poison messages.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/domain"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/metrics"
	"github.com/xshift007/lab3-distri/internal/schema"
)

const (
	maxRetries  = 3
	baseBackoff = 1 * time.Second

	serviceName = "validator"
)

// Outcome is the terminal result of one delivery. Whatever the outcome, the
// delivery is acknowledged exactly once by the consumer.
type Outcome int

const (
	OutcomeForwarded Outcome = iota
	OutcomeDeadLettered
)

// Handler applies the per-message algorithm. The clock, sleep and chaos
// hooks are injectable so tests can drive the retry path without waiting.
type Handler struct {
	registry *schema.Registry
	pub      rabbitmq.Publisher
	log      zerolog.Logger

	now   func() time.Time
	sleep func(time.Duration)
	// chaos, when non-nil, may return a simulated transient error for the
	// given attempt (0-based). Wired to the SIMULATE_ERRORS flag.
	chaos func(attempt int) error
}

func NewHandler(registry *schema.Registry, pub rabbitmq.Publisher, log zerolog.Logger) *Handler {
	return &Handler{
		registry: registry,
		pub:      pub,
		log:      log,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// WithChaos enables the simulated-failure hook.
func (h *Handler) WithChaos(chaos func(attempt int) error) *Handler {
	h.chaos = chaos
	return h
}

// Handle runs one delivery to a terminal outcome. Poison input goes straight
// to the DLQ; transient errors are retried with 1s/2s/4s backoff and dead-
// lettered once retries are exhausted. The caller acks after Handle returns.
func (h *Handler) Handle(ctx context.Context, routingKey string, body []byte) Outcome {
	for attempt := 0; ; attempt++ {
		outcome, err := h.attempt(ctx, attempt, routingKey, body)
		if err == nil {
			return outcome
		}

		h.log.Warn().Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", maxRetries+1).
			Msg("transient error processing delivery")

		if attempt >= maxRetries {
			h.log.Error().Str("routing_key", routingKey).Msg("retries exhausted, dead-lettering")
			h.sendToDLQ(ctx, body, fmt.Sprintf("Max retries exceeded: %v", err))
			metrics.RecordDLQMessage(serviceName, "retries_exhausted")
			return OutcomeDeadLettered
		}

		backoff := time.Duration(float64(baseBackoff) * math.Pow(2, float64(attempt)))
		metrics.RecordRetryAttempt(serviceName)
		h.sleep(backoff)
	}
}

// attempt performs one pass of parse → validate → forward. A returned error
// means the attempt failed transiently and may be retried; poison input is
// resolved inside and never returns an error.
func (h *Handler) attempt(ctx context.Context, attempt int, routingKey string, body []byte) (Outcome, error) {
	if h.chaos != nil {
		if err := h.chaos(attempt); err != nil {
			return 0, err
		}
	}

	var event map[string]any
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Error().Err(err).Msg("body is not valid JSON, dead-lettering")
		if dlqErr := h.sendToDLQ(ctx, body, "Invalid JSON"); dlqErr != nil {
			return 0, dlqErr
		}
		metrics.RecordDLQMessage(serviceName, "invalid_json")
		return OutcomeDeadLettered, nil
	}

	if err := h.registry.Validate(event); err != nil {
		h.log.Warn().Err(err).Str("routing_key", routingKey).Msg("event rejected by schema")
		if dlqErr := h.sendToDLQ(ctx, body, err.Error()); dlqErr != nil {
			return 0, dlqErr
		}
		metrics.RecordDLQMessage(serviceName, "schema")
		return OutcomeDeadLettered, nil
	}

	// Forward the body unchanged, preserving the original routing key.
	if err := h.pub.Publish(ctx, rabbitmq.ProcessingExchange, routingKey, body, nil); err != nil {
		return 0, err
	}

	metrics.RecordMessageForwarded(serviceName)
	h.log.Debug().Str("routing_key", routingKey).Msg("event forwarded")
	return OutcomeForwarded, nil
}

// sendToDLQ wraps the body in the DLQ envelope and publishes it. The
// original event is included parsed when the body is JSON, raw otherwise.
// A publish failure is returned so poison classification can re-enter the
// transient-retry path instead of acking with the DLQ record lost.
func (h *Handler) sendToDLQ(ctx context.Context, body []byte, reason string) error {
	var original any
	if err := json.Unmarshal(body, &original); err != nil {
		original = string(body)
	}

	msg := domain.DLQMessage{
		OriginalEvent: original,
		Error:         reason,
		FailedAt:      h.now().UTC().Format("2006-01-02T15:04:05Z"),
		Service:       serviceName,
	}

	encoded, err := json.Marshal(msg)
	if err != nil {
		// Nothing redeemable to publish; retrying cannot help.
		h.log.Error().Err(err).Msg("failed to encode DLQ envelope")
		return nil
	}
	if err := h.pub.Publish(ctx, rabbitmq.DLQExchange, rabbitmq.DeadLetterRoutingKey, encoded, nil); err != nil {
		h.log.Error().Err(err).Msg("failed to publish to DLQ")
		return err
	}
	return nil
}
