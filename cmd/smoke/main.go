// Command smoke exercises every JSON-RPC method of a running monitor:
// handshake, tool listing, each tool and both resource templates.
//
// Usage:
//
//	RPC_URL=http://localhost:8765/rpc go run ./cmd/smoke
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/retry"
	"github.com/fraudlens/paysim-monitor/internal/rpcserver"
)

const (
	waitTimeout  = 3 * time.Minute
	waitInterval = 2 * time.Second
)

// demoValues are picked from the overview: the first loaded id and the
// account that sent the most transactions.
type demoValues struct {
	N           int64  `json:"n"`
	IDMin       int64  `json:"id_min"`
	DemoAccount string `json:"demo_account"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, "text")
	ctx := logging.WithLogger(context.Background(), logger)

	if err := run(ctx, rpcserver.NewClient(cfg.RPCURL)); err != nil {
		logger.Error("smoke test failed", "url", cfg.RPCURL, "error", err)
		os.Exit(1)
	}
	logger.Info("smoke test passed", "url", cfg.RPCURL)
}

func run(ctx context.Context, c *rpcserver.Client) error {
	logger := logging.L(ctx)

	// The server and loader may still be starting.
	logger.Info("waiting for data", "timeout", waitTimeout)
	var demo demoValues
	err := retry.Poll(ctx, waitTimeout, waitInterval, func() error {
		if err := c.Ping(ctx); err != nil {
			return err
		}
		v, err := fetchDemoValues(ctx, c)
		if err != nil {
			return err
		}
		demo = *v
		return nil
	})
	if err != nil {
		return fmt.Errorf("no data available: %w", err)
	}
	logger.Info("data available", "transactions", demo.N)

	info, err := c.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	show("initialize", info)

	tools, err := c.ListTools(ctx)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	fmt.Printf("== tools/list\n%v\n\n", tools)

	account, txID := demo.DemoAccount, demo.IDMin
	logger.Info("demo values", "account", account, "tx_id", txID)

	calls := []struct {
		op   rpcserver.Operation
		args map[string]any
	}{
		{rpcserver.OpOverview, nil},
		{rpcserver.OpAccountKPI, map[string]any{"name": account, "step_from": 1, "step_to": 200}},
		{rpcserver.OpDetectSuspicious, map[string]any{"name": account, "min_amount": 200000, "window_steps": 10, "max_rows": 10}},
		{rpcserver.OpSuggestParams, map[string]any{"name": account}},
		{rpcserver.OpScoreAccount, map[string]any{"name": account, "tx_id": txID}},
	}
	for _, call := range calls {
		raw, err := c.CallTool(ctx, call.op, call.args)
		if err != nil {
			return fmt.Errorf("tools/call %s: %w", call.op, err)
		}
		show("tools/call "+call.op.String(), raw)
	}

	for _, uri := range []string{rpcserver.AccountURI(account), rpcserver.TransactionURI(txID)} {
		raw, err := c.ReadResource(ctx, uri)
		if err != nil {
			return fmt.Errorf("resources/read %s: %w", uri, err)
		}
		show("resources/read "+uri, raw)
	}
	return nil
}

// fetchDemoValues reads the overview. An empty table is retried; a
// malformed reply is not.
func fetchDemoValues(ctx context.Context, c *rpcserver.Client) (*demoValues, error) {
	raw, err := c.CallTool(ctx, rpcserver.OpOverview, nil)
	if err != nil {
		return nil, err
	}
	var v demoValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode overview: %w", err))
	}
	if v.N == 0 {
		return nil, errors.New("transactions table is empty")
	}
	if v.DemoAccount == "" || v.IDMin <= 0 {
		return nil, retry.Permanent(fmt.Errorf("overview has no demo values (id_min=%d, demo_account=%q)", v.IDMin, v.DemoAccount))
	}
	return &v, nil
}

func show(title string, raw json.RawMessage) {
	var v any
	out := []byte(raw)
	if err := json.Unmarshal(raw, &v); err == nil {
		if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
			out = pretty
		}
	}
	fmt.Printf("== %s\n%s\n\n", title, out)
}
