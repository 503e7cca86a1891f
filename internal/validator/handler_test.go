package validator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xshift007/lab3-distri/internal/logger"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/schema"
)

const validBody = `{
	"event_id": "550e8400-e29b-41d4-a716-446655440000",
	"timestamp": "2025-01-15T10:30:00Z",
	"region": "norte",
	"source": "security.incident",
	"schema_version": "1.0",
	"payload": {
		"crime_type": "theft",
		"severity": "medium",
		"location": {"latitude": -33.4489, "longitude": -70.6693},
		"reported_by": "citizen"
	}
}`

func newTestHandler(pub rabbitmq.Publisher) *Handler {
	logger.Init()
	h := NewHandler(schema.NewRegistry(), pub, logger.For("validator"))
	h.sleep = func(time.Duration) {} // no real waiting in tests
	h.now = func() time.Time { return time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC) }
	return h
}

func decodeDLQ(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var msg map[string]any
	require.NoError(t, json.Unmarshal(body, &msg))
	return msg
}

func TestHandle_ValidEventForwarded(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	outcome := h.Handle(context.Background(), "security.incident", []byte(validBody))

	assert.Equal(t, OutcomeForwarded, outcome)
	forwarded := pub.ByExchange(rabbitmq.ProcessingExchange)
	require.Len(t, forwarded, 1)
	assert.Equal(t, "security.incident", forwarded[0].RoutingKey)
	// Body must pass through byte-for-byte.
	assert.Equal(t, []byte(validBody), forwarded[0].Body)
	assert.Empty(t, pub.ByExchange(rabbitmq.DLQExchange))
}

func TestHandle_NonJSONGoesToDLQ(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	outcome := h.Handle(context.Background(), "security.incident", []byte("not json at all"))

	assert.Equal(t, OutcomeDeadLettered, outcome)
	dlq := pub.ByExchange(rabbitmq.DLQExchange)
	require.Len(t, dlq, 1)
	assert.Equal(t, rabbitmq.DeadLetterRoutingKey, dlq[0].RoutingKey)

	msg := decodeDLQ(t, dlq[0].Body)
	assert.Equal(t, "not json at all", msg["original_event"])
	assert.Equal(t, "Invalid JSON", msg["error"])
	assert.Equal(t, "validator", msg["service"])
}

func TestHandle_InvalidUUIDGoesToDLQ(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(validBody), &event))
	event["event_id"] = "invalid-uuid"
	body, err := json.Marshal(event)
	require.NoError(t, err)

	outcome := h.Handle(context.Background(), "security.incident", body)

	assert.Equal(t, OutcomeDeadLettered, outcome)
	assert.Empty(t, pub.ByExchange(rabbitmq.ProcessingExchange))

	dlq := pub.ByExchange(rabbitmq.DLQExchange)
	require.Len(t, dlq, 1)
	msg := decodeDLQ(t, dlq[0].Body)
	assert.Contains(t, msg["error"], "UUID")
	// The original event is embedded parsed, not as a string.
	original, ok := msg["original_event"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "invalid-uuid", original["event_id"])
}

func TestHandle_UnknownSourceGoesToDLQ(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	var event map[string]any
	require.NoError(t, json.Unmarshal([]byte(validBody), &event))
	event["source"] = "unknown.event.type"
	body, err := json.Marshal(event)
	require.NoError(t, err)

	outcome := h.Handle(context.Background(), "unknown.event.type", body)

	assert.Equal(t, OutcomeDeadLettered, outcome)
	dlq := pub.ByExchange(rabbitmq.DLQExchange)
	require.Len(t, dlq, 1)
	msg := decodeDLQ(t, dlq[0].Body)
	assert.Contains(t, msg["error"], "unknown event type")
}

func TestHandle_WrongPayloadTypeGoesToDLQ(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	body := []byte(`{
		"event_id": "550e8400-e29b-41d4-a716-446655440000",
		"timestamp": "2025-01-15T10:30:00Z",
		"region": "sur",
		"source": "survey.victimization",
		"schema_version": "1.0",
		"payload": {
			"survey_id": "srv-12345",
			"respondent_age": "35",
			"victimization_type": "theft",
			"reported": true
		}
	}`)

	outcome := h.Handle(context.Background(), "survey.victimization", body)

	assert.Equal(t, OutcomeDeadLettered, outcome)
	dlq := pub.ByExchange(rabbitmq.DLQExchange)
	require.Len(t, dlq, 1)
	assert.Contains(t, decodeDLQ(t, dlq[0].Body)["error"], "integer")
}

func TestHandle_DLQEnvelopeHasExactKeys(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	h.Handle(context.Background(), "security.incident", []byte("garbage"))

	dlq := pub.ByExchange(rabbitmq.DLQExchange)
	require.Len(t, dlq, 1)
	msg := decodeDLQ(t, dlq[0].Body)
	assert.Len(t, msg, 4)
	for _, key := range []string{"original_event", "error", "failed_at", "service"} {
		assert.Contains(t, msg, key)
	}
	assert.Equal(t, "2025-01-15T12:00:00Z", msg["failed_at"])
}

func TestHandle_TransientErrorRetriedThenSucceeds(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	var slept []time.Duration
	h.sleep = func(d time.Duration) { slept = append(slept, d) }

	failures := 2
	h.WithChaos(func(attempt int) error {
		if failures > 0 {
			failures--
			return errors.New("simulated network failure")
		}
		return nil
	})

	outcome := h.Handle(context.Background(), "security.incident", []byte(validBody))

	assert.Equal(t, OutcomeForwarded, outcome)
	require.Len(t, pub.ByExchange(rabbitmq.ProcessingExchange), 1)
	// Backoff schedule: 1s then 2s.
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, slept)
}

func TestHandle_RetriesExhaustedGoesToDLQ(t *testing.T) {
	pub := &rabbitmq.FakePublisher{}
	h := newTestHandler(pub)

	var slept []time.Duration
	h.sleep = func(d time.Duration) { slept = append(slept, d) }
	h.WithChaos(func(int) error { return errors.New("broker gone") })

	outcome := h.Handle(context.Background(), "security.incident", []byte(validBody))

	assert.Equal(t, OutcomeDeadLettered, outcome)
	// 1s, 2s, 4s before the three retries; then give up.
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, slept)

	dlq := pub.ByExchange(rabbitmq.DLQExchange)
	require.Len(t, dlq, 1)
	msg := decodeDLQ(t, dlq[0].Body)
	assert.Contains(t, msg["error"], "Max retries exceeded")
	assert.Contains(t, msg["error"], "broker gone")
	assert.Empty(t, pub.ByExchange(rabbitmq.ProcessingExchange))
}

func TestHandle_PublishFailureIsTransient(t *testing.T) {
	pub := &rabbitmq.FakePublisher{Err: errors.New("channel closed")}
	h := newTestHandler(pub)

	attempts := 0
	h.WithChaos(func(int) error {
		attempts++
		return nil
	})

	outcome := h.Handle(context.Background(), "security.incident", []byte(validBody))

	assert.Equal(t, OutcomeDeadLettered, outcome)
	assert.Equal(t, 4, attempts) // initial attempt + 3 retries
}

// flakyDLQPublisher fails the first N publishes to the DLQ exchange and
// forwards everything else to the embedded fake.
type flakyDLQPublisher struct {
	rabbitmq.FakePublisher
	failures int
}

func (p *flakyDLQPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	if exchange == rabbitmq.DLQExchange && p.failures > 0 {
		p.failures--
		return errors.New("channel closed")
	}
	return p.FakePublisher.Publish(ctx, exchange, routingKey, body, headers)
}

func TestHandle_DLQPublishFailureIsRetried(t *testing.T) {
	pub := &flakyDLQPublisher{failures: 1}
	h := newTestHandler(pub)

	var slept []time.Duration
	h.sleep = func(d time.Duration) { slept = append(slept, d) }

	outcome := h.Handle(context.Background(), "security.incident", []byte("not json at all"))

	// The poison verdict stands, but the DLQ record must not be lost to a
	// transient publish failure: one backoff, then the record lands.
	assert.Equal(t, OutcomeDeadLettered, outcome)
	assert.Equal(t, []time.Duration{1 * time.Second}, slept)
	dlq := pub.ByExchange(rabbitmq.DLQExchange)
	require.Len(t, dlq, 1)
	assert.Equal(t, "Invalid JSON", decodeDLQ(t, dlq[0].Body)["error"])
}

func TestHandle_DLQPublishFailuresExhaustRetries(t *testing.T) {
	pub := &flakyDLQPublisher{failures: 10}
	h := newTestHandler(pub)

	var slept []time.Duration
	h.sleep = func(d time.Duration) { slept = append(slept, d) }

	outcome := h.Handle(context.Background(), "security.incident", []byte("not json at all"))

	assert.Equal(t, OutcomeDeadLettered, outcome)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, slept)
	// The broker never took the record; all that remains is the log trail.
	assert.Empty(t, pub.ByExchange(rabbitmq.DLQExchange))
}

func TestChaos_NeverFailsAfterSecondAttempt(t *testing.T) {
	chaos := Chaos(newDeterministicRand())
	for i := 0; i < 1000; i++ {
		assert.NoError(t, chaos(2))
		assert.NoError(t, chaos(3))
	}
}
