// Command loader fills the transactions table from a PaySim CSV export.
//
// Usage:
//
//	go run ./cmd/loader                       # Load CSV_PATH into DATABASE_URL
//	go run ./cmd/loader reduce <in> <out>     # Write the monitor-relevant subset of <in> to <out>
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/ingest"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	if len(os.Args) > 1 && os.Args[1] == "reduce" {
		if len(os.Args) != 4 {
			fmt.Fprintln(os.Stderr, "Usage: loader reduce <input.csv> <output.csv>")
			os.Exit(2)
		}
		err = reduce(os.Args[2], os.Args[3], cfg.MaxRows)
	} else {
		err = load(ctx, cfg)
	}
	if err != nil {
		logger.Error("loader failed", "error", err)
		os.Exit(1)
	}
}

func load(ctx context.Context, cfg *config.Config) error {
	logger := logging.L(ctx)
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	f, err := os.Open(cfg.CSVPath)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer func() { _ = f.Close() }()

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	store := transactions.NewPostgresStore(db)
	loader := ingest.NewLoader(store, ingest.Config{MaxRows: cfg.MaxRows})

	logger.Info("waiting for database", "timeout", cfg.ConnectTimeout)
	if err := loader.WaitForStore(ctx, cfg.ConnectTimeout); err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	logger.Info("loading csv", "path", cfg.CSVPath, "max_rows", cfg.MaxRows)
	res, err := loader.Load(ctx, f)
	if err != nil {
		return err
	}
	if res.Skipped {
		logger.Info("table already populated, nothing to do", "existing", res.Existing)
	}
	return nil
}

func reduce(in, out string, maxRows int) error {
	src, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}

	res, err := ingest.Reduce(src, dst, maxRows)
	if cerr := dst.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	if err != nil {
		return err
	}
	fmt.Printf("reduced %s: kept %d of %d rows -> %s\n", in, res.Kept, res.Read, out)
	return nil
}
