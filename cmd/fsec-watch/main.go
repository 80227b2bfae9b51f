package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"fsec/internal/app"
	"fsec/internal/config"
	"fsec/internal/logging"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	must(err)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	must(err)
	defer a.Close()

	w, err := a.Watcher()
	must(err)
	logger.Info("watching for schedules",
		zap.String("dir", cfg.DownloadDir),
		zap.Int("interval_sec", cfg.WatchIntervalSec),
		zap.String("registry", cfg.RegistryBackend))
	must(w.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
