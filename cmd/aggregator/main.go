package main

import (
	"github.com/xshift007/lab3-distri/internal/aggregator"
	"github.com/xshift007/lab3-distri/internal/app"
	"github.com/xshift007/lab3-distri/internal/config"
	"github.com/xshift007/lab3-distri/internal/logger"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
)

func main() {
	logger.Init()
	log := logger.For("aggregator")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := app.SignalContext(log)
	defer cancel()

	health := &app.Health{}
	srv := app.StartOpsServer(cfg.MetricsAddr, health, log)
	defer app.Shutdown(srv, log)

	for {
		conn, ch, err := app.ConnectBroker(ctx, cfg.AMQPURL(), log)
		if err != nil {
			break
		}
		health.Set(true)

		// Window state does not survive reconnects; partially counted
		// windows are redelivered and recounted, dedup absorbs the overlap.
		agg := aggregator.New(rabbitmq.NewChannelPublisher(ch), cfg.AggregationWindow, log)

		err = aggregator.NewConsumer(ch, agg, log).Run(ctx)
		health.Set(false)
		conn.Close()

		if ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Msg("broker connection lost, reconnecting")
	}

	log.Info().Msg("aggregator stopped")
}
