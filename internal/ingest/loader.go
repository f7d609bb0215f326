package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fraudlens/paysim-monitor/internal/logging"
	"github.com/fraudlens/paysim-monitor/internal/metrics"
	"github.com/fraudlens/paysim-monitor/internal/retry"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

const (
	DefaultBatchSize = 5000
	DefaultMaxRows   = 50000

	connectInterval = 2 * time.Second
)

// Config controls one load.
type Config struct {
	// MaxRows caps how many CSV rows are read.
	MaxRows int
	// BatchSize is the number of rows per BulkInsert call.
	BatchSize int
}

// Result describes what a load did.
type Result struct {
	Read     int   `json:"read"`
	Inserted int   `json:"inserted"`
	Skipped  bool  `json:"skipped"`
	Existing int64 `json:"existing"`
}

// Loader writes CSV rows into a transaction store. Loads are one-shot: a
// store that already holds transactions is left untouched.
type Loader struct {
	store    transactions.Store
	cfg      Config
	interval time.Duration
}

// NewLoader creates a Loader. Zero config fields take their defaults.
func NewLoader(store transactions.Store, cfg Config) *Loader {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Loader{store: store, cfg: cfg, interval: connectInterval}
}

// WaitForStore pings the store every two seconds until it answers or
// timeout elapses. Databases started alongside the loader take a while to
// accept connections.
func (l *Loader) WaitForStore(ctx context.Context, timeout time.Duration) error {
	attempt := 0
	err := retry.Poll(ctx, timeout, l.interval, func() error {
		attempt++
		if err := l.store.Ping(ctx); err != nil {
			logging.L(ctx).Debug("store not reachable yet", "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store not reachable after %s: %w", timeout, err)
	}
	return nil
}

// Load reads up to MaxRows rows from r and inserts them in batches.
func (l *Loader) Load(ctx context.Context, r io.Reader) (*Result, error) {
	logger := logging.L(ctx)

	existing, err := l.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}
	if existing > 0 {
		logger.Info("store already loaded, skipping", "existing", existing)
		return &Result{Skipped: true, Existing: existing}, nil
	}

	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	batch := make([]*transactions.Transaction, 0, l.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.store.BulkInsert(ctx, batch)
		if err != nil {
			return fmt.Errorf("failed to insert batch at row %d: %w", res.Read-len(batch)+1, err)
		}
		res.Inserted += n
		metrics.RowsIngestedTotal.Add(float64(n))
		logger.Debug("batch inserted", "rows", n, "total", res.Inserted)
		batch = batch[:0]
		return nil
	}

	for res.Read < l.cfg.MaxRows {
		tx, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Read++
		batch = append(batch, tx)
		if len(batch) == l.cfg.BatchSize {
			if err := flush(); err != nil {
				return res, err
			}
		}
	}
	if err := flush(); err != nil {
		return res, err
	}

	logger.Info("load complete", "read", res.Read, "inserted", res.Inserted)
	return res, nil
}
