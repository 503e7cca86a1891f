package publisher

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
)

// Runner paces the generator against the input exchange. With burst mode on,
// roughly one tick in ten swaps the single event for a spike of 5 to 15
// security incidents.
type Runner struct {
	gen         *Generator
	pub         rabbitmq.Publisher
	log         zerolog.Logger
	rate        float64 // events per second
	enableBurst bool

	rng   *rand.Rand
	sleep func(time.Duration)
}

func NewRunner(gen *Generator, pub rabbitmq.Publisher, rate float64, enableBurst bool, rng *rand.Rand, log zerolog.Logger) *Runner {
	if rate <= 0 {
		rate = 1
	}
	return &Runner{
		gen:         gen,
		pub:         pub,
		log:         log,
		rate:        rate,
		enableBurst: enableBurst,
		rng:         rng,
		sleep:       time.Sleep,
	}
}

// Run publishes until the context is canceled or a publish fails. A failed
// publish means the channel is gone; the caller reconnects and calls Run
// again.
func (r *Runner) Run(ctx context.Context) error {
	interval := time.Duration(float64(time.Second) / r.rate)
	r.log.Info().
		Float64("rate", r.rate).
		Bool("burst", r.enableBurst).
		Msg("publisher started")

	for {
		if ctx.Err() != nil {
			r.log.Info().Msg("publisher stopped")
			return nil
		}

		var err error
		if r.enableBurst && r.rng.Float64() < 0.1 {
			err = r.burst(ctx)
		} else {
			err = r.publishOne(ctx)
		}
		if err != nil {
			return err
		}
		r.sleep(interval)
	}
}

func (r *Runner) burst(ctx context.Context) error {
	n := 5 + r.rng.Intn(11)
	r.log.Info().Int("events", n).Msg("incident burst")
	for i := 0; i < n; i++ {
		routingKey, body, err := r.gen.NextIncident()
		if err != nil {
			r.log.Error().Err(err).Msg("failed to generate burst event")
			continue
		}
		if err := r.publish(ctx, routingKey, body); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) publishOne(ctx context.Context) error {
	routingKey, body, err := r.gen.Next()
	if err != nil {
		r.log.Error().Err(err).Msg("failed to generate event")
		return nil
	}
	return r.publish(ctx, routingKey, body)
}

func (r *Runner) publish(ctx context.Context, routingKey string, body []byte) error {
	if err := r.pub.Publish(ctx, rabbitmq.EventsExchange, routingKey, body, nil); err != nil {
		r.log.Error().Err(err).Str("routing_key", routingKey).Msg("publish failed")
		return err
	}
	r.log.Debug().Str("routing_key", routingKey).Msg("event published")
	return nil
}
