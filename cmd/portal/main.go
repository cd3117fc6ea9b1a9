// Command eventdesk-portal serves the local web frontend.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/eventdesk/internal/app"
	"github.com/and161185/eventdesk/internal/config"
	"github.com/and161185/eventdesk/internal/logger"
	"github.com/and161185/eventdesk/internal/portal"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, starts session restore in the background and serves the portal.
func main() {
	// Flags
	cfgPath := flag.String("config", "", "YAML config file")
	apiURL := flag.String("api", "", "backend base URL (overrides config)")
	listen := flag.String("listen", "", "listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	if *apiURL != "" {
		cfg.APIURL = *apiURL
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		zap.NewExample().Fatal("build logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()
	log.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("api", cfg.APIURL),
		zap.String("storage", cfg.Storage.Backend),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, closeStore, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("wire client", zap.Error(err))
	}
	defer closeStore()

	// handlers render the pending placeholder until this settles
	go a.Session.Restore(ctx)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := portal.New(a.Session, a.API, a.Admin, portal.WithLogger(log.Named("portal")))
	if err := srv.Run(ctx, cfg.ListenAddr); err != nil {
		log.Error("server error", zap.Error(err))
		closeStore()
		os.Exit(1)
	}

	log.Info("shutdown complete")
}
