package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/fraudlens/paysim-monitor/migrations"
)

// PostgresStore reads transactions from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrations.Up(ctx, s.db)
}

const selectColumns = `id, step, type, amount, name_orig, oldbalance_org, newbalance_org,
	name_dest, oldbalance_dest, newbalance_dest, is_fraud, is_flagged_fraud`

func (s *PostgresStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM transactions WHERE id = $1`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) Outgoing(ctx context.Context, account string, steps StepRange) (FlowTotals, error) {
	var f FlowTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount), 0)::float8,
		       COUNT(*) FILTER (WHERE is_fraud)
		FROM transactions
		WHERE name_orig = $1 AND step BETWEEN $2 AND $3
	`, account, steps.From, steps.To).Scan(&f.Count, &f.Total, &f.Fraud)
	if err != nil {
		return FlowTotals{}, fmt.Errorf("failed to aggregate outgoing: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) Incoming(ctx context.Context, account string, steps StepRange) (FlowTotals, error) {
	var f FlowTotals
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount), 0)::float8,
		       COUNT(*) FILTER (WHERE is_fraud)
		FROM transactions
		WHERE name_dest = $1 AND step BETWEEN $2 AND $3
	`, account, steps.From, steps.To).Scan(&f.Count, &f.Total, &f.Fraud)
	if err != nil {
		return FlowTotals{}, fmt.Errorf("failed to aggregate incoming: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) TopOutgoingTypes(ctx context.Context, account string, steps StepRange, limit int) ([]TypeCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) AS cnt
		FROM transactions
		WHERE name_orig = $1 AND step BETWEEN $2 AND $3
		GROUP BY type
		ORDER BY cnt DESC, type ASC
		LIMIT $4
	`, account, steps.From, steps.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to count outgoing types: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTypeCounts(rows)
}

func (s *PostgresStore) LargestRiskyOutgoing(ctx context.Context, q MatchQuery) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM transactions
		WHERE name_orig = $1
		  AND amount >= $2
		  AND type = ANY($3)
		ORDER BY amount DESC, id ASC
		LIMIT $4
	`, q.Account, q.MinAmount, pq.Array(typeStrings(RiskyTypes)), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query risky outgoing: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTransactions(rows)
}

func (s *PostgresStore) OutgoingStats(ctx context.Context, account string) (*OutgoingStats, error) {
	stats := &OutgoingStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(amount), 0)::float8,
		       COALESCE(MAX(amount), 0)::float8,
		       COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY amount), 0)::float8,
		       COALESCE(MIN(step), 0),
		       COALESCE(MAX(step), 0)
		FROM transactions
		WHERE name_orig = $1
	`, account).Scan(&stats.Count, &stats.Average, &stats.Max, &stats.P95, &stats.StepMin, &stats.StepMax)
	if err != nil {
		return nil, fmt.Errorf("failed to compute outgoing stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) RiskyOutgoingStats(ctx context.Context, account string) (*RiskyStats, error) {
	stats := &RiskyStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(MAX(amount), 0)::float8,
		       COALESCE(percentile_cont(0.95) WITHIN GROUP (ORDER BY amount), 0)::float8
		FROM transactions
		WHERE name_orig = $1 AND type = ANY($2)
	`, account, pq.Array(typeStrings(RiskyTypes))).Scan(&stats.Count, &stats.Max, &stats.P95)
	if err != nil {
		return nil, fmt.Errorf("failed to compute risky stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) ListByAccount(ctx context.Context, q PageQuery) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM transactions
		WHERE (name_orig = $1 OR name_dest = $1)
		  AND (step, id) > ($2, $3)
		ORDER BY step ASC, id ASC
		LIMIT $4
	`, q.Account, q.AfterStep, q.AfterID, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list account transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTransactions(rows)
}

func (s *PostgresStore) Overview(ctx context.Context, topTypes int) (*Overview, error) {
	ov := &Overview{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_fraud),
		       COALESCE(MIN(step), 0),
		       COALESCE(MAX(step), 0)
		FROM transactions
	`).Scan(&ov.N, &ov.NFraud, &ov.StepMin, &ov.StepMax)
	if err != nil {
		return nil, fmt.Errorf("failed to compute overview: %w", err)
	}
	if ov.N > 0 {
		ov.FraudRate = float64(ov.NFraud) / float64(ov.N)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT type, COUNT(*) AS cnt
		FROM transactions
		GROUP BY type
		ORDER BY cnt DESC, type ASC
		LIMIT $1
	`, topTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to count types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ov.TopTypes, err = scanTypeCounts(rows)
	if err != nil {
		return nil, err
	}
	return ov, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM (
			SELECT name_orig AS name FROM transactions
			UNION
			SELECT name_dest AS name FROM transactions
		) accounts
		WHERE name <> ''
		ORDER BY name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) BusiestOrigin(ctx context.Context) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `
		SELECT name_orig
		FROM transactions
		GROUP BY name_orig
		ORDER BY COUNT(*) DESC, name_orig ASC
		LIMIT 1
	`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find busiest origin: %w", err)
	}
	return name, nil
}

func (s *PostgresStore) IDRange(ctx context.Context) (int64, int64, error) {
	var lo, hi sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MIN(id), MAX(id) FROM transactions`).Scan(&lo, &hi); err != nil {
		return 0, 0, fmt.Errorf("failed to read id range: %w", err)
	}
	if !lo.Valid {
		return 0, 0, ErrNotFound
	}
	return lo.Int64, hi.Int64, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// BulkInsert loads txs with COPY inside a single database transaction.
// IDs are assigned by the database.
func (s *PostgresStore) BulkInsert(ctx context.Context, txs []*Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin bulk insert: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.PrepareContext(ctx, pq.CopyIn("transactions",
		"step", "type", "amount", "name_orig", "oldbalance_org", "newbalance_org",
		"name_dest", "oldbalance_dest", "newbalance_dest", "is_fraud", "is_flagged_fraud",
	))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx,
			tx.Step, string(tx.Type), tx.Amount,
			tx.OriginAccount, tx.OriginOldBalance, tx.OriginNewBalance,
			tx.DestinationAccount, tx.DestinationOldBalance, tx.DestinationNewBalance,
			tx.IsFraud, tx.IsFlaggedFraud,
		); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("failed to copy row: %w", err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy: %w", err)
	}
	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk insert: %w", err)
	}
	return len(txs), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*Transaction, error) {
	var tx Transaction
	var typ string
	if err := row.Scan(
		&tx.ID, &tx.Step, &typ, &tx.Amount,
		&tx.OriginAccount, &tx.OriginOldBalance, &tx.OriginNewBalance,
		&tx.DestinationAccount, &tx.DestinationOldBalance, &tx.DestinationNewBalance,
		&tx.IsFraud, &tx.IsFlaggedFraud,
	); err != nil {
		return nil, err
	}
	tx.Type = Type(typ)
	return &tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*Transaction, error) {
	var out []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func scanTypeCounts(rows *sql.Rows) ([]TypeCount, error) {
	out := []TypeCount{}
	for rows.Next() {
		var tc TypeCount
		var typ string
		if err := rows.Scan(&typ, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan type count: %w", err)
		}
		tc.Type = Type(typ)
		out = append(out, tc)
	}
	return out, rows.Err()
}

func typeStrings(types []Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
