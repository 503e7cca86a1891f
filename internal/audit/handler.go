package audit

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/domain"
)

// Disposition tells the consumer what to do with a delivery after handling.
// Poison messages (undecodable or structurally incomplete) are acknowledged
// and dropped; storage failures are requeued because the broker redelivering
// later is the only way the row ever lands.
type Disposition int

const (
	DispositionAck Disposition = iota
	DispositionRequeue
)

const defaultRunID = "default"

// runIDFrom resolves the run identifier: message header wins, then the body
// field, then the default.
func runIDFrom(headers amqp.Table, fromBody string) string {
	if v, ok := headers["run_id"].(string); ok && v != "" {
		return v
	}
	if fromBody != "" {
		return fromBody
	}
	return defaultRunID
}

// EventHandler persists validated events flowing off the processing exchange.
type EventHandler struct {
	store    *Store
	recorder *Recorder
	log      zerolog.Logger
}

func NewEventHandler(store *Store, recorder *Recorder, log zerolog.Logger) *EventHandler {
	return &EventHandler{store: store, recorder: recorder, log: log}
}

// Handle records the delivery in the side log, then inserts it into
// events_in. Idempotent on event_id.
func (h *EventHandler) Handle(ctx context.Context, body []byte, headers amqp.Table) Disposition {
	h.recorder.Append(body)

	var event map[string]any
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Warn().Err(err).Msg("dropping undecodable event")
		return DispositionAck
	}

	stored, err := storedEventFrom(event, headers)
	if err != nil {
		h.log.Warn().Err(err).Msg("dropping structurally incomplete event")
		return DispositionAck
	}

	if err := h.store.InsertEvent(ctx, stored); err != nil {
		h.log.Error().Err(err).Str("event_id", stored.EventID).Msg("event insert failed, requeueing")
		return DispositionRequeue
	}

	h.log.Debug().Str("event_id", stored.EventID).Str("run_id", stored.RunID).Msg("event stored")
	return DispositionAck
}

// storedEventFrom maps the wire envelope onto an events_in row, rejecting
// envelopes missing any NOT NULL column.
func storedEventFrom(event map[string]any, headers amqp.Table) (StoredEvent, error) {
	str := func(key string) string {
		v, _ := event[key].(string)
		return v
	}

	ev := StoredEvent{
		EventID:       str("event_id"),
		Timestamp:     str("timestamp"),
		Region:        str("region"),
		Source:        str("source"),
		SchemaVersion: str("schema_version"),
		CorrelationID: str("correlation_id"),
		RunID:         runIDFrom(headers, str("run_id")),
	}
	for _, field := range []struct{ name, value string }{
		{"event_id", ev.EventID},
		{"timestamp", ev.Timestamp},
		{"region", ev.Region},
		{"source", ev.Source},
	} {
		if field.value == "" {
			return StoredEvent{}, domain.NewInvalidInput("missing required field: " + field.name)
		}
	}

	payload, ok := event["payload"]
	if !ok {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return StoredEvent{}, domain.NewInvalidInput("payload not serializable")
	}
	ev.PayloadJSON = string(payloadJSON)
	return ev, nil
}

// MetricHandler persists daily metrics and their lineage rows.
type MetricHandler struct {
	store   *Store
	log     zerolog.Logger
	newUUID func() string
}

func NewMetricHandler(store *Store, log zerolog.Logger) *MetricHandler {
	return &MetricHandler{store: store, log: log, newUUID: func() string { return uuid.NewString() }}
}

// Handle inserts one metric row plus its trace rows in a single transaction.
// A metric referencing an event the event writer has not committed yet fails
// the foreign key and is requeued; redelivery resolves the race.
func (h *MetricHandler) Handle(ctx context.Context, body []byte, headers amqp.Table) Disposition {
	var metric domain.Metric
	if err := json.Unmarshal(body, &metric); err != nil {
		h.log.Warn().Err(err).Msg("dropping undecodable metric")
		return DispositionAck
	}

	if metric.MetricID == "" {
		metric.MetricID = h.newUUID()
	}
	if metric.Date == "" || metric.Region == "" {
		h.log.Warn().Str("metric_id", metric.MetricID).Msg("dropping metric without date or region")
		return DispositionAck
	}
	metric.RunID = runIDFrom(headers, metric.RunID)

	metricsJSON, err := json.Marshal(metric.Metrics)
	if err != nil {
		h.log.Warn().Err(err).Str("metric_id", metric.MetricID).Msg("dropping metric with unserializable counters")
		return DispositionAck
	}

	if err := h.store.InsertMetric(ctx, metric, string(metricsJSON)); err != nil {
		h.log.Error().Err(err).Str("metric_id", metric.MetricID).Msg("metric insert failed, requeueing")
		return DispositionRequeue
	}

	h.log.Debug().
		Str("metric_id", metric.MetricID).
		Str("region", metric.Region).
		Int("lineage", len(metric.InputEventIDs)).
		Msg("metric stored")
	return DispositionAck
}
