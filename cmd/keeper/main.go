// Package main runs the lottery keeper: the scheduled draw orchestrator,
// health monitor, and administrative HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hastrology/lottery-service/internal/app"
	"github.com/hastrology/lottery-service/internal/app/storage/postgres"
	"github.com/hastrology/lottery-service/internal/config"
	"github.com/hastrology/lottery-service/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to keeper config YAML")
	envFile := flag.String("env", "", "optional .env file to load")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			logger.NewDefault("keeper").WithError(err).Warn("load env file")
		}
	} else {
		// Best-effort default; a missing .env is fine.
		_ = godotenv.Load()
	}

	log := logger.NewDefault("keeper")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("load configuration")
		os.Exit(1)
	}

	var stores app.Stores
	if cfg.Storage.PostgresDSN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			cancel()
			log.WithError(err).Error("open postgres")
			os.Exit(1)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			cancel()
			log.WithError(err).Error("ensure postgres schema")
			os.Exit(1)
		}
		cancel()
		defer store.Close()
		log.Info("using postgres storage")
		stores = app.Stores{Rounds: store, Attempts: store, Incidents: store}
	} else {
		log.Warn("no postgres dsn configured; history is in-memory only")
	}

	application, err := app.New(cfg, stores, log)
	if err != nil {
		log.WithError(err).Error("build application")
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = application.Start(startCtx)
	cancel()
	if err != nil {
		log.WithError(err).Error("start services")
		os.Exit(1)
	}
	log.WithField("listen", cfg.HTTP.Listen).Info("keeper running")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-application.Server.Err():
		log.WithError(err).Error("http server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown")
		os.Exit(1)
	}
	log.Info("keeper stopped")
}
