// paysim-monitor serves the fraud monitor: JSON-RPC tools, the REST mirror
// and the analyst dashboard.
package main

import (
	"context"
	"os"

	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/server"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting paysim-monitor",
		"version", version,
		"commit", commit,
		"env", cfg.Env,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
		"csv_path", cfg.CSVPath,
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
