package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"airwatch/internal/alerts"
	"airwatch/internal/api"
	"airwatch/internal/backend"
	"airwatch/internal/config"
	"airwatch/internal/controller"
	"airwatch/internal/feed"
	"airwatch/internal/logging"
	"airwatch/internal/session"
	"airwatch/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to config file (YAML or JSON)")
	flag.Parse()

	var manager *config.Manager
	if *configPath != "" {
		m, err := config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		manager = m
	} else {
		manager = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := manager.Get()

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("airwatch starting", "version", version, "backend", cfg.Backend.BaseURL)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	client := backend.NewClient(
		backend.WithBaseURL(cfg.Backend.BaseURL),
		backend.WithTimeouts(cfg.Backend.ProbeTimeout, cfg.Backend.FetchTimeout),
	)
	alertStore := alerts.NewStore()
	ctrl := controller.New(cfg, logger, client, alertStore, store)
	sess := session.New(logger, client, ctrl.Connected)

	if ctrl.Probe(ctx, cfg.Backend.ProbeRegion) {
		logger.Info("backend reachable", "probe_region", cfg.Backend.ProbeRegion)
		if err := ctrl.SelectRegion(ctx, ctrl.Region()); err != nil {
			logger.Warn("initial region selection failed", "err", err)
		}
	} else {
		logger.Warn("backend unreachable, starting disconnected", "base_url", cfg.Backend.BaseURL)
	}

	feed.StartKafka(ctx, manager, alertStore, logger)
	httpServer := api.Start(ctx, manager, ctrl, alertStore, sess, logger, version)

	stop := make(chan struct{})
	go manager.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded", "path", manager.Path())
			ctrl.UpdateConfig(next)
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		stop,
	)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	close(stop)
	cancel()
	if httpServer != nil {
		sh, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = httpServer.Shutdown(sh)
	}
	logger.Info("airwatch stopped")
}
