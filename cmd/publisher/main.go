package main

import (
	"flag"
	"math/rand"
	"time"

	"github.com/xshift007/lab3-distri/internal/app"
	"github.com/xshift007/lab3-distri/internal/config"
	"github.com/xshift007/lab3-distri/internal/logger"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/publisher"
)

func main() {
	logger.Init()
	log := logger.For("publisher")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	seed := flag.Int64("seed", time.Now().UnixNano(), "RNG seed for reproducible traffic")
	flag.Parse()

	ctx, cancel := app.SignalContext(log)
	defer cancel()

	rng := rand.New(rand.NewSource(*seed))
	gen := publisher.NewGenerator(cfg.Regions, rng)

	for {
		conn, ch, err := app.ConnectBroker(ctx, cfg.AMQPURL(), log)
		if err != nil {
			break
		}

		runner := publisher.NewRunner(gen, rabbitmq.NewChannelPublisher(ch),
			cfg.EventRate, cfg.EnableBurst, rng, log)
		err = runner.Run(ctx)
		conn.Close()

		if ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Msg("broker connection lost, reconnecting")
	}

	log.Info().Msg("publisher stopped")
}
