package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	charmlog "github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/CyntientOps/opsync/config"
	"github.com/CyntientOps/opsync/engine"
	"github.com/CyntientOps/opsync/internal/monitor"
	"github.com/CyntientOps/opsync/internal/transport"
)

func main() {
	configPath := flag.String("config", "opsync.yaml", "path to the engine config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := charmlog.InfoLevel
	if *debug {
		level = charmlog.DebugLevel
	}
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           level,
	})
	logger := slog.New(handler)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	tr, err := transport.New(transport.Config{
		Logger:     logger,
		Endpoint:   cfg.Remote.Endpoint,
		SkipVerify: cfg.Remote.SkipVerify,
		SendLimit:  rate.Limit(cfg.SendLimiter.Limit),
		SendBurst:  cfg.SendLimiter.Burst,
	})
	if err != nil {
		logger.Error("failed to build transport", "error", err)
		os.Exit(1)
	}

	sessions := monitor.NewStaticSession(cfg.Session.Token)

	eng, err := engine.New(engine.Config{
		Logger:               logger,
		StoreDir:             cfg.StoreDir,
		Transport:            tr,
		Sessions:             sessions,
		DrainBatch:           cfg.DrainBatch,
		DrainInterval:        cfg.Probes.Drain,
		ConnectivityInterval: cfg.Probes.Connectivity,
		SessionInterval:      cfg.Probes.Session,
	})
	if err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// Initial connect is best-effort: a failure just means we start offline
	// and the connectivity monitor drains once the link comes back.
	if err := eng.Connect(cfg.Session.Token); err != nil {
		logger.Warn("starting offline, queued updates will drain on reconnect", "error", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	eng.Shutdown()
}
