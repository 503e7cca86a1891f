package main

import (
	"math/rand"
	"time"

	"github.com/xshift007/lab3-distri/internal/app"
	"github.com/xshift007/lab3-distri/internal/config"
	"github.com/xshift007/lab3-distri/internal/logger"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/schema"
	"github.com/xshift007/lab3-distri/internal/validator"
)

func main() {
	logger.Init()
	log := logger.For("validator")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := app.SignalContext(log)
	defer cancel()

	health := &app.Health{}
	srv := app.StartOpsServer(cfg.MetricsAddr, health, log)
	defer app.Shutdown(srv, log)

	registry := schema.NewRegistry()

	for {
		conn, ch, err := app.ConnectBroker(ctx, cfg.AMQPURL(), log)
		if err != nil {
			break // context canceled during dial
		}
		health.Set(true)

		handler := validator.NewHandler(registry, rabbitmq.NewChannelPublisher(ch), log)
		if cfg.SimulateErrors {
			log.Warn().Msg("chaos mode enabled")
			handler.WithChaos(validator.Chaos(rand.New(rand.NewSource(time.Now().UnixNano()))))
		}

		err = validator.NewConsumer(ch, handler, log).Run(ctx)
		health.Set(false)
		conn.Close()

		if ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Msg("broker connection lost, reconnecting")
	}

	log.Info().Msg("validator stopped")
}
