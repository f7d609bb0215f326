// MCP server over stdio - exposes the fraud monitor tools to LLM clients
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/fraudlens/paysim-monitor/internal/cache"
	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/monitor"
	"github.com/fraudlens/paysim-monitor/internal/rpcserver"
	appserver "github.com/fraudlens/paysim-monitor/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries the protocol, so logs go to stderr
	logger := logging.NewTo(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	ctx := logging.WithLogger(context.Background(), logger)

	storeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	store, db, err := appserver.OpenStore(storeCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	svc := monitor.New(store, cache.NewMemoryCache(1000), cfg.CacheTTL)
	s, err := rpcserver.NewMCPServer(svc)
	if err != nil {
		logger.Error("failed to build rpc server", "error", err)
		os.Exit(1)
	}

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
