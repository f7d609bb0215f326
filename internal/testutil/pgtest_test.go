package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPGTest_SkipsWithoutDatabase(t *testing.T) {
	if os.Getenv("POSTGRES_URL") != "" || containerURL != nil {
		t.Skip("database configured")
	}

	var skipped bool
	t.Run("inner", func(t *testing.T) {
		defer func() { skipped = t.Skipped() }()
		PGTest(t)
	})
	assert.True(t, skipped)
}

func TestPGTest_AppliesMigrations(t *testing.T) {
	db := PGTest(t)

	var table *string
	require.NoError(t, db.QueryRow(`SELECT to_regclass('public.transactions')::text`).Scan(&table))
	require.NotNil(t, table)
	assert.Equal(t, "transactions", *table)
}

func TestTruncate_RestartsIdentity(t *testing.T) {
	db := PGTest(t)

	insert := `INSERT INTO transactions (step, type, amount, name_orig, oldbalance_org, newbalance_org,
		name_dest, oldbalance_dest, newbalance_dest, is_fraud, is_flagged_fraud)
		VALUES (1, 'PAYMENT', 10, 'C1', 10, 0, 'M1', 0, 0, false, false) RETURNING id`

	var id int64
	require.NoError(t, db.QueryRow(insert).Scan(&id))
	require.NoError(t, db.QueryRow(insert).Scan(&id))
	require.NoError(t, Truncate(context.Background(), db))
	require.NoError(t, db.QueryRow(insert).Scan(&id))
	assert.Equal(t, int64(1), id)
}
