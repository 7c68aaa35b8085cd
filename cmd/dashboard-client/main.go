package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"can-telemetry-dashboard/internal/config"
	"can-telemetry-dashboard/internal/fetcher"
	"can-telemetry-dashboard/internal/hub"
	"can-telemetry-dashboard/internal/logger"
	"can-telemetry-dashboard/internal/poller"
	"can-telemetry-dashboard/internal/reconcile"
	"can-telemetry-dashboard/internal/storage"
)

var flagConfig = flag.String("config", "", "Path to YAML config file (optional)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		logger.New("error").Fatalw("load config", "err", err)
	}
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	store, err := openStore(cfg, log)
	if err != nil {
		log.Fatalw("open store", "err", err)
	}

	rec := reconcile.New()
	events := hub.New(cfg.HubSubBuffer, log)
	p := poller.New(fetcher.New(cfg.APIBaseURL), rec, events, store,
		cfg.PollInterval, cfg.FetchTimeout, log)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: newServer(rec, store, events),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infow("shutdown signal")
		cancel()
	}()

	pollerDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(pollerDone)
	}()

	go func() {
		log.Infow("dashboard client listening", "addr", cfg.ListenAddr, "gateway", cfg.APIBaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("http server", "err", err)
		}
	}()

	<-ctx.Done()
	<-pollerDone
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	_ = server.Shutdown(shutCtx)
}

func openStore(cfg *config.Config, log *logger.Logger) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		log.Infow("using sqlite history store", "dsn", cfg.Storage.SQLiteDSN)
		return storage.NewSQLiteStore(cfg.Storage.SQLiteDSN)
	case "influx":
		log.Infow("using influx history store", "url", cfg.Storage.InfluxURL,
			"org", cfg.Storage.InfluxOrg, "bucket", cfg.Storage.InfluxBucket)
		return storage.NewInfluxStore(cfg.Storage.InfluxURL, cfg.Storage.InfluxOrg,
			cfg.Storage.InfluxBucket, cfg.Storage.InfluxToken)
	default:
		log.Infow("using in-memory history store")
		return storage.NewMemoryStore(), nil
	}
}
