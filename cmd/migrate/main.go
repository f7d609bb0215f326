// Command migrate manages the transactions schema with the embedded goose
// migrations. The server and loader apply pending migrations on start;
// this is for inspecting and rolling back.
//
// Usage:
//
//	go run ./cmd/migrate up              # Apply all pending migrations
//	go run ./cmd/migrate up-to <v>       # Apply up to and including version v
//	go run ./cmd/migrate down            # Roll back the last migration
//	go run ./cmd/migrate down-to <v>     # Roll back to version v
//	go run ./cmd/migrate status          # List migrations and when they ran
//	go run ./cmd/migrate version         # Print the current schema version
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/migrations"
)

const usage = "Usage: migrate up | up-to <version> | down | down-to <version> | status | version"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.DatabaseURL, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		logger.Error("migrate failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn, command string, args []string, out io.Writer) error {
	if dsn == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	provider, err := migrations.NewProvider(db)
	if err != nil {
		return err
	}
	return apply(ctx, provider, command, args, out)
}

func apply(ctx context.Context, p *goose.Provider, command string, args []string, out io.Writer) error {
	switch command {
	case "up":
		res, err := p.Up(ctx)
		return report(out, res, err)
	case "down":
		res, err := p.Down(ctx)
		if err != nil {
			return err
		}
		return report(out, []*goose.MigrationResult{res}, nil)
	case "up-to", "down-to":
		v, err := versionArg(args)
		if err != nil {
			return err
		}
		if command == "up-to" {
			res, err := p.UpTo(ctx, v)
			return report(out, res, err)
		}
		res, err := p.DownTo(ctx, v)
		return report(out, res, err)
	case "status":
		statuses, err := p.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			applied := "pending"
			if st.State == goose.StateApplied {
				applied = st.AppliedAt.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%5d  %-45s %s\n", st.Source.Version, st.Source.Path, applied)
		}
		return nil
	case "version":
		v, err := p.GetDBVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n%s", command, usage)
	}
}

func versionArg(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("expected exactly one version argument")
	}
	v, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return v, nil
}

func report(out io.Writer, results []*goose.MigrationResult, err error) error {
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no migrations to run")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%-4s %5d  %s (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
	return nil
}
