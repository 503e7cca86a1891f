package main

import (
	"net/http"

	"github.com/xshift007/lab3-distri/internal/app"
	"github.com/xshift007/lab3-distri/internal/config"
	"github.com/xshift007/lab3-distri/internal/dashboard"
	"github.com/xshift007/lab3-distri/internal/logger"
)

func main() {
	logger.Init()
	log := logger.For("dashboard")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := app.SignalContext(log)
	defer cancel()

	snap := &dashboard.Snapshot{}

	webSrv := &http.Server{
		Addr:    cfg.DashboardAddr,
		Handler: dashboard.NewRouter(snap, log),
	}
	go func() {
		log.Info().Str("addr", cfg.DashboardAddr).Msg("dashboard listening")
		if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("dashboard server failed")
		}
	}()
	defer app.Shutdown(webSrv, log)

	health := &app.Health{}
	opsSrv := app.StartOpsServer(cfg.MetricsAddr, health, log)
	defer app.Shutdown(opsSrv, log)

	for {
		conn, ch, err := app.ConnectBroker(ctx, cfg.AMQPURL(), log)
		if err != nil {
			break
		}
		health.Set(true)

		err = dashboard.NewConsumer(ch, snap, log).Run(ctx)
		health.Set(false)
		conn.Close()

		if ctx.Err() != nil {
			break
		}
		// The exclusive queue died with the connection; a fresh one is bound
		// on reconnect and the snapshot just goes stale in between.
		log.Warn().Err(err).Msg("broker connection lost, reconnecting")
	}

	log.Info().Msg("dashboard stopped")
}
