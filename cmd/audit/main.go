package main

import (
	"github.com/xshift007/lab3-distri/internal/app"
	"github.com/xshift007/lab3-distri/internal/audit"
	"github.com/xshift007/lab3-distri/internal/config"
	"github.com/xshift007/lab3-distri/internal/logger"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
)

func main() {
	logger.Init()
	log := logger.For("audit")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := audit.Open(cfg.AuditDBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.AuditDBPath).Msg("failed to open audit database")
	}
	defer store.Close()

	recorder := audit.NewRecorder(cfg.LogFilePath, log)
	eventHandler := audit.NewEventHandler(store, recorder, log)
	metricHandler := audit.NewMetricHandler(store, log)

	ctx, cancel := app.SignalContext(log)
	defer cancel()

	health := &app.Health{}
	srv := app.StartOpsServer(cfg.MetricsAddr, health, log)
	defer app.Shutdown(srv, log)

	for {
		conn, eventsCh, err := app.ConnectBroker(ctx, cfg.AMQPURL(), log)
		if err != nil {
			break
		}
		metricsCh, err := conn.Channel()
		if err != nil {
			log.Error().Err(err).Msg("failed to open metrics channel")
			conn.Close()
			continue
		}
		health.Set(true)

		errCh := make(chan error, 2)
		go func() {
			errCh <- audit.NewConsumer(eventsCh, rabbitmq.AuditQueue, eventHandler, log).Run(ctx)
		}()
		go func() {
			errCh <- audit.NewConsumer(metricsCh, rabbitmq.AuditMetricsQueue, metricHandler, log).Run(ctx)
		}()

		err = <-errCh
		health.Set(false)
		conn.Close()
		<-errCh // closing the connection stops the sibling consumer

		if ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Msg("broker connection lost, reconnecting")
	}

	log.Info().Msg("audit stopped")
}
