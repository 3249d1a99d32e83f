package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"ragengine/internal/app"
	"ragengine/internal/config"
	"ragengine/internal/logging"
	"ragengine/internal/obs"
	"ragengine/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Log.WithError(err).Fatal("invalid configuration")
	}
	logging.Configure(cfg.LogLevel, cfg.LogPath)
	log := logging.Log
	log.WithField("version", version.Version).Info("ragengine starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := obs.InitExporters(ctx, cfg.Obs)
	if err != nil {
		log.WithError(err).Warn("otel exporters unavailable, continuing without a collector")
	} else {
		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("otel shutdown failed")
			}
		}()
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("startup failed")
	}
	defer a.Shutdown(context.Background())

	if a.Graph != nil {
		if err := a.Graph.VerifyConnectivity(ctx); err != nil {
			log.WithError(err).Warn("graph store not reachable at startup")
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Ping(ctx); err != nil {
			log.WithError(err).Warn("cache not reachable at startup")
		}
	}

	log.Info("ragengine ready")
	<-ctx.Done()
	log.Info("ragengine shutting down")
}
