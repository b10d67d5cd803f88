package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"smartcampus/internal/app"
	"smartcampus/internal/config"
	"smartcampus/internal/pkg/logger"
	"smartcampus/internal/pkg/logger/sl"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", sl.Err(err))
		os.Exit(1)
	}

	log := logger.New(cfg.AppEnv)
	log.Info("starting smart campus api",
		slog.String("env", cfg.AppEnv),
		slog.String("timezone", cfg.Location.String()),
		slog.String("events_transport", cfg.Events.Transport),
	)

	application, err := app.New(log, cfg)
	if err != nil {
		log.Error("failed to initialize application", sl.Err(err))
		os.Exit(1)
	}

	go application.MustRun()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	sign := <-stop
	log.Info("stopping application", slog.String("signal", sign.String()))
	if err := application.Stop(); err != nil {
		log.Error("failed to stop application", sl.Err(err))
		os.Exit(1)
	}
	log.Info("application stopped")
}
