// Package replay streams persisted audit log lines back into the input
// exchange so history can be reprocessed.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
)

const (
	defaultThrottle   = 50 * time.Millisecond
	genericRoutingKey = "replay.generic"
)

// Reader re-publishes events from a JSON-Lines file. It is fire-and-forget:
// publishes are not confirmed and downstream acknowledgement is not awaited.
type Reader struct {
	pub      rabbitmq.Publisher
	log      zerolog.Logger
	throttle time.Duration
	sleep    func(time.Duration)
}

func New(pub rabbitmq.Publisher, log zerolog.Logger) *Reader {
	return &Reader{
		pub:      pub,
		log:      log,
		throttle: defaultThrottle,
		sleep:    time.Sleep,
	}
}

// Run streams the file at path line by line and returns the number of events
// published. Malformed lines are skipped; partial trailing lines from a
// crashed writer fall out the same way.
func (r *Reader) Run(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()

	published := 0
	skipped := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			skipped++
			r.log.Warn().Err(err).Msg("skipping malformed line")
			continue
		}

		event := innerEvent(record)
		body, err := json.Marshal(event)
		if err != nil {
			skipped++
			continue
		}

		routingKey := genericRoutingKey
		if source, ok := event["source"].(string); ok && source != "" {
			routingKey = source
		}

		headers := amqp.Table{"x-replay": true}
		if err := r.pub.Publish(ctx, rabbitmq.EventsExchange, routingKey, body, headers); err != nil {
			r.log.Error().Err(err).Str("routing_key", routingKey).Msg("replay publish failed")
			skipped++
			continue
		}

		published++
		if published%10 == 0 {
			r.log.Info().Int("published", published).Msg("replay progress")
		}
		r.sleep(r.throttle)
	}
	if err := scanner.Err(); err != nil {
		return published, fmt.Errorf("read replay file: %w", err)
	}

	r.log.Info().Int("published", published).Int("skipped", skipped).Msg("replay complete")
	return published, nil
}

// innerEvent unwraps the record: audit log lines and dead-letter envelopes
// nest the event under "event" or "original_event"; bare records pass
// through as-is.
func innerEvent(record map[string]any) map[string]any {
	for _, key := range []string{"event", "original_event"} {
		if nested, ok := record[key].(map[string]any); ok {
			return nested
		}
	}
	return record
}
