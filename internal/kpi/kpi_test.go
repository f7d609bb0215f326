package kpi

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fraudlens/paysim-monitor/internal/cache"
	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

func seededStore(t *testing.T) *transactions.MemoryStore {
	t.Helper()
	store := transactions.NewMemoryStore()
	_, err := store.BulkInsert(context.Background(), []*transactions.Transaction{
		{Step: 1, Type: transactions.TypeTransfer, Amount: 300000, OriginAccount: "C1", DestinationAccount: "M1", IsFraud: true},
		{Step: 2, Type: transactions.TypeCashOut, Amount: 100000, OriginAccount: "C1", DestinationAccount: "M2"},
		{Step: 3, Type: transactions.TypeTransfer, Amount: 50000, OriginAccount: "C1", DestinationAccount: "M3"},
		{Step: 4, Type: transactions.TypePayment, Amount: 10, OriginAccount: "C1", DestinationAccount: "M4"},
		{Step: 5, Type: transactions.TypeCashIn, Amount: 2000, OriginAccount: "C2", DestinationAccount: "C1"},
		{Step: 300, Type: transactions.TypeTransfer, Amount: 999999, OriginAccount: "C1", DestinationAccount: "M5"},
	})
	require.NoError(t, err)
	return store
}

func TestAccountKPI(t *testing.T) {
	agg := NewAggregator(seededStore(t), nil, 0)

	k, err := agg.AccountKPI(context.Background(), "C1", 1, 200)
	require.NoError(t, err)

	assert.Equal(t, "C1", k.Name)
	assert.Equal(t, 1, k.StepFrom)
	assert.Equal(t, 200, k.StepTo)
	assert.Equal(t, int64(4), k.Out.Count)
	assert.InDelta(t, 450010.0, k.Out.Total, 1e-6)
	assert.InDelta(t, 112502.5, k.Out.Average, 1e-6)
	assert.Equal(t, int64(1), k.Out.Fraud)
	assert.Equal(t, int64(1), k.In.Count)
	assert.InDelta(t, 2000.0, k.In.Total, 1e-6)
	assert.InDelta(t, 2000.0, k.In.Average, 1e-6)
	assert.Equal(t, []transactions.TypeCount{
		{Type: transactions.TypeTransfer, Count: 2},
		{Type: transactions.TypeCashOut, Count: 1},
		{Type: transactions.TypePayment, Count: 1},
	}, k.TopOutTypes)
}

func TestAccountKPI_NoActivityHasZeroAverages(t *testing.T) {
	agg := NewAggregator(seededStore(t), nil, 0)

	k, err := agg.AccountKPI(context.Background(), "C404", 1, 200)
	require.NoError(t, err)

	assert.Equal(t, Outgoing{}, k.Out)
	assert.Equal(t, Incoming{}, k.In)
	assert.NotNil(t, k.TopOutTypes)
	assert.Empty(t, k.TopOutTypes)
}

func TestAccountKPI_InvertedRange(t *testing.T) {
	agg := NewAggregator(seededStore(t), nil, 0)

	k, err := agg.AccountKPI(context.Background(), "C1", 200, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), k.Out.Count)
	assert.Equal(t, 0.0, k.Out.Average)
}

func TestAccountKPI_EmptyAccount(t *testing.T) {
	agg := NewAggregator(seededStore(t), nil, 0)

	_, err := agg.AccountKPI(context.Background(), "  ", 1, 200)
	assert.ErrorIs(t, err, ErrEmptyAccount)

	_, err = agg.Summary(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyAccount)
}

type failingStore struct {
	transactions.Store
	err error
}

func (f failingStore) Outgoing(context.Context, string, transactions.StepRange) (transactions.FlowTotals, error) {
	return transactions.FlowTotals{}, f.err
}

func TestAccountKPI_StoreErrorWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	agg := NewAggregator(failingStore{Store: transactions.NewMemoryStore(), err: boom}, nil, 0)

	_, err := agg.AccountKPI(context.Background(), "C1", 1, 200)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "C1")
}

type countingStore struct {
	transactions.Store
	outgoing atomic.Int32
}

func (c *countingStore) Outgoing(ctx context.Context, account string, steps transactions.StepRange) (transactions.FlowTotals, error) {
	c.outgoing.Add(1)
	return c.Store.Outgoing(ctx, account, steps)
}

func TestAccountKPI_Cached(t *testing.T) {
	store := &countingStore{Store: seededStore(t)}
	agg := NewAggregator(store, cache.NewMemoryCache(0), time.Minute)
	ctx := context.Background()

	first, err := agg.AccountKPI(ctx, "C1", 1, 200)
	require.NoError(t, err)
	second, err := agg.AccountKPI(ctx, "C1", 1, 200)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), store.outgoing.Load())

	_, err = agg.AccountKPI(ctx, "C1", 1, 100)
	require.NoError(t, err)
	assert.Equal(t, int32(2), store.outgoing.Load())
}

func TestSummary(t *testing.T) {
	agg := NewAggregator(seededStore(t), nil, 0)

	s, err := agg.Summary(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.CountOut)
	assert.InDelta(t, 1450009.0, s.TotalOut, 1e-6)
	assert.Equal(t, int64(1), s.CountIn)
	assert.Equal(t, int64(1), s.FraudOut)
}
