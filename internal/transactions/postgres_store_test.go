//go:build integration

package transactions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fraudlens/paysim-monitor/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	db := testutil.PGTest(t)

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	runStoreSuite(t, store)
}
