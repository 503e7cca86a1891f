// Package aggregator implements the tumbling-window stage: per-region/source
// counters with in-window deduplication, flushed lazily when a delivery
// arrives after the window has elapsed.
package aggregator

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/domain"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/metrics"
)

const unknownKey = "unknown"

// Aggregator owns the open window. It is mutated only between deliveries by
// the single consumer goroutine, so no locking is needed.
type Aggregator struct {
	pub       rabbitmq.Publisher
	windowLen time.Duration
	log       zerolog.Logger

	now     func() time.Time
	newUUID func() string

	windowStart    time.Time
	processedIDs   map[string]struct{}
	stats          map[string]map[string]int
	eventsByRegion map[string]map[string]struct{}
}

func New(pub rabbitmq.Publisher, windowLen time.Duration, log zerolog.Logger) *Aggregator {
	a := &Aggregator{
		pub:       pub,
		windowLen: windowLen,
		log:       log,
		now:       time.Now,
		newUUID:   func() string { return uuid.NewString() },
	}
	a.reset(a.now())
	return a
}

func (a *Aggregator) reset(now time.Time) {
	a.windowStart = now
	a.processedIDs = make(map[string]struct{})
	a.stats = make(map[string]map[string]int)
	a.eventsByRegion = make(map[string]map[string]struct{})
}

// Process folds one delivery into the open window and closes the window when
// its duration has elapsed. Errors are logged and swallowed: the caller
// always acknowledges, favoring liveness over windowed exactness (the audit
// store keeps the authoritative event record).
func (a *Aggregator) Process(ctx context.Context, body []byte) {
	var event map[string]any
	if err := json.Unmarshal(body, &event); err != nil {
		a.log.Warn().Err(err).Msg("dropping non-JSON delivery")
		return
	}

	eventID, _ := event["event_id"].(string)
	if _, dup := a.processedIDs[eventID]; dup {
		a.log.Debug().Str("event_id", eventID).Msg("duplicate within window, dropped")
		metrics.RecordDedupHit()
		return
	}

	a.count(event, eventID)
	a.processedIDs[eventID] = struct{}{}

	if a.now().Sub(a.windowStart) >= a.windowLen {
		a.flush(ctx)
	}
}

func (a *Aggregator) count(event map[string]any, eventID string) {
	region, _ := event["region"].(string)
	if region == "" {
		region = unknownKey
	}
	source, _ := event["source"].(string)
	if source == "" {
		source = unknownKey
	}

	if a.stats[region] == nil {
		a.stats[region] = make(map[string]int)
	}
	a.stats[region][source]++

	if eventID != "" {
		if a.eventsByRegion[region] == nil {
			a.eventsByRegion[region] = make(map[string]struct{})
		}
		a.eventsByRegion[region][eventID] = struct{}{}
	}
}

// flush publishes the window summary followed by one metric per region, then
// resets all window state atomically. An empty window only restarts the
// clock.
func (a *Aggregator) flush(ctx context.Context) {
	now := a.now()

	if len(a.stats) == 0 {
		a.windowStart = now
		return
	}

	summary := domain.WindowSummary{
		Type:           "window_summary",
		WindowStartISO: a.windowStart.Format(time.RFC3339),
		WindowEndISO:   now.Format(time.RFC3339),
		TotalProcessed: len(a.processedIDs),
		StatsByRegion:  a.stats,
	}
	if body, err := json.Marshal(summary); err != nil {
		a.log.Error().Err(err).Msg("failed to encode window summary")
	} else if err := a.pub.Publish(ctx, rabbitmq.AnalyticsExchange, rabbitmq.SummaryRoutingKey, body, nil); err != nil {
		a.log.Error().Err(err).Msg("failed to publish window summary")
	}

	date := now.Format("2006-01-02")
	for region, regionStats := range a.stats {
		metric := domain.Metric{
			MetricID:      a.newUUID(),
			Date:          date,
			Region:        region,
			RunID:         "default",
			Metrics:       regionStats,
			InputEventIDs: sortedIDs(a.eventsByRegion[region]),
		}
		body, err := json.Marshal(metric)
		if err != nil {
			a.log.Error().Err(err).Str("region", region).Msg("failed to encode metric")
			continue
		}
		if err := a.pub.Publish(ctx, rabbitmq.AnalyticsExchange, rabbitmq.MetricsRoutingKey, body, nil); err != nil {
			a.log.Error().Err(err).Str("region", region).Msg("failed to publish metric")
		}
	}

	a.log.Info().
		Int("events", len(a.processedIDs)).
		Int("regions", len(a.stats)).
		Msg("window closed")
	metrics.RecordWindowFlushed(len(a.processedIDs))

	a.reset(a.now())
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
