package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"akrasiaBot/internal/app/runtime"
	"akrasiaBot/internal/infrastructure/config"
	"akrasiaBot/internal/infrastructure/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if err := logging.Init(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("invalid logging configuration")
	}

	run, err := runtime.Start(ctx, runtime.Options{Config: cfg})
	if err != nil {
		log.Fatal().Err(err).Msg("couldn't start bot")
	}

	<-ctx.Done()

	if err := run.Stop(); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
	log.Info().Msg("bot shut down")
}
