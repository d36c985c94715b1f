package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"hrnotify/internal/app"
	"hrnotify/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "critical: config load failed: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg)

	log.Info().
		Str("version", cfg.App.Version).
		Str("env", cfg.Env).
		Msg("application starting")

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("application crashed")
		os.Exit(1)
	}

	log.Info().Msg("shutdown complete")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out zerolog.ConsoleWriter
	if cfg.Env == "local" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(out).Level(level).With().
			Timestamp().
			Str("app", cfg.App.Name).
			Logger()
	}

	return zerolog.New(os.Stdout).Level(level).With().
		Timestamp().
		Str("app", cfg.App.Name).
		Logger()
}
