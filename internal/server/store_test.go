package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeCSV = `step,type,amount,nameOrig,oldbalanceOrg,newbalanceOrig,nameDest,oldbalanceDest,newbalanceDest,isFraud,isFlaggedFraud
1,TRANSFER,181.0,C1305486145,181.0,0.0,C553264065,0.0,0.0,1,0
1,CASH_OUT,181.0,C840083671,181.0,0.0,C38997010,21182.0,0.0,1,0
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore_LoadsCSVIntoMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paysim.csv")
	require.NoError(t, os.WriteFile(path, []byte(storeCSV), 0o600))

	cfg := testConfig()
	cfg.CSVPath = path

	store, db, err := OpenStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, db)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOpenStore_MissingCSVStartsEmpty(t *testing.T) {
	cfg := testConfig()
	cfg.CSVPath = filepath.Join(t.TempDir(), "absent.csv")

	store, _, err := OpenStore(context.Background(), cfg, discardLogger())
	require.NoError(t, err)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenStore_MalformedCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("step,type\n1,PAYMENT\n"), 0o600))

	cfg := testConfig()
	cfg.CSVPath = path

	_, _, err := OpenStore(context.Background(), cfg, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")
}
