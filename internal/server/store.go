package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/fraudlens/paysim-monitor/internal/config"
	"github.com/fraudlens/paysim-monitor/internal/ingest"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

// OpenStore returns the transaction store cfg selects. With DATABASE_URL it
// connects to Postgres and returns the pool alongside the store so the
// caller can close it. Without one it loads CSV_PATH into memory, or starts
// empty when that file does not exist.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transactions.Store, *sql.DB, error) {
	if cfg.DatabaseURL == "" {
		store, err := openMemoryStore(ctx, cfg, logger)
		return store, nil, err
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := transactions.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to migrate transactions: %w", err)
	}

	logger.Info("connected to postgres", "dsn", maskDSN(cfg.DatabaseURL))
	return store, db, nil
}

func openMemoryStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (transactions.Store, error) {
	store := transactions.NewMemoryStore()

	f, err := os.Open(cfg.CSVPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("DATABASE_URL not set and no CSV found, transaction store is empty", "csv_path", cfg.CSVPath)
		return store, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", cfg.CSVPath, err)
	}
	defer func() { _ = f.Close() }()

	res, err := ingest.NewLoader(store, ingest.Config{MaxRows: cfg.MaxRows}).Load(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.CSVPath, err)
	}
	logger.Info("using in-memory transaction store", "csv_path", cfg.CSVPath, "rows", res.Inserted)
	return store, nil
}
