package main

import (
	"flag"

	"github.com/xshift007/lab3-distri/internal/app"
	"github.com/xshift007/lab3-distri/internal/config"
	"github.com/xshift007/lab3-distri/internal/logger"
	"github.com/xshift007/lab3-distri/internal/messaging/rabbitmq"
	"github.com/xshift007/lab3-distri/internal/replay"
)

func main() {
	logger.Init()
	log := logger.For("replay")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	path := flag.String("file", cfg.LogFilePath, "JSON-Lines audit file to replay")
	flag.Parse()

	ctx, cancel := app.SignalContext(log)
	defer cancel()

	conn, ch, err := app.ConnectBroker(ctx, cfg.AMQPURL(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer conn.Close()

	reader := replay.New(rabbitmq.NewChannelPublisher(ch), log)
	published, err := reader.Run(ctx, *path)
	if err != nil {
		log.Fatal().Err(err).Int("published", published).Msg("replay aborted")
	}

	log.Info().Int("published", published).Str("file", *path).Msg("replay finished")
}
