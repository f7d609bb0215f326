package transactions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture loads a small dataset centred on account C100.
func fixture() []*Transaction {
	return []*Transaction{
		{Step: 1, Type: TypeTransfer, Amount: 300000, OriginAccount: "C100", OriginOldBalance: 300000, OriginNewBalance: 0, DestinationAccount: "M1", IsFraud: true},
		{Step: 2, Type: TypeCashOut, Amount: 250000, OriginAccount: "C100", DestinationAccount: "M2"},
		{Step: 3, Type: TypePayment, Amount: 5000, OriginAccount: "C100", DestinationAccount: "M3"},
		{Step: 250, Type: TypeTransfer, Amount: 900000, OriginAccount: "C100", DestinationAccount: "M4"},
		{Step: 5, Type: TypeCashIn, Amount: 1000, OriginAccount: "C200", DestinationAccount: "C100"},
		{Step: 6, Type: TypeTransfer, Amount: 250000, OriginAccount: "C100", DestinationAccount: "M5"},
		{Step: 7, Type: TypePayment, Amount: 100, OriginAccount: "C200", DestinationAccount: "M1"},
	}
}

var firstSteps = StepRange{From: 1, To: 200}

func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	n, err := store.BulkInsert(ctx, fixture())
	require.NoError(t, err)
	require.Equal(t, 7, n)

	lo, hi, err := store.IDRange(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), hi-lo)

	t.Run("Get", func(t *testing.T) {
		tx, err := store.Get(ctx, lo)
		require.NoError(t, err)
		assert.Equal(t, "C100", tx.OriginAccount)
		assert.Equal(t, TypeTransfer, tx.Type)
		assert.True(t, tx.IsFraud)
		assert.True(t, tx.DrainsOrigin())

		_, err = store.Get(ctx, hi+1000)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Outgoing", func(t *testing.T) {
		f, err := store.Outgoing(ctx, "C100", firstSteps)
		require.NoError(t, err)
		assert.Equal(t, int64(4), f.Count)
		assert.InDelta(t, 805000.0, f.Total, 0.001)
		assert.Equal(t, int64(1), f.Fraud)
		assert.InDelta(t, 201250.0, f.Average(), 0.001)
	})

	t.Run("OutgoingAllSteps", func(t *testing.T) {
		f, err := store.Outgoing(ctx, "C100", AllSteps)
		require.NoError(t, err)
		assert.Equal(t, int64(5), f.Count)
	})

	t.Run("Incoming", func(t *testing.T) {
		f, err := store.Incoming(ctx, "C100", firstSteps)
		require.NoError(t, err)
		assert.Equal(t, int64(1), f.Count)
		assert.InDelta(t, 1000.0, f.Total, 0.001)
	})

	t.Run("UnknownAccount", func(t *testing.T) {
		f, err := store.Outgoing(ctx, "C999", firstSteps)
		require.NoError(t, err)
		assert.Equal(t, FlowTotals{}, f)
		assert.Equal(t, 0.0, f.Average())

		types, err := store.TopOutgoingTypes(ctx, "C999", firstSteps, 5)
		require.NoError(t, err)
		assert.Empty(t, types)
	})

	t.Run("TopOutgoingTypes", func(t *testing.T) {
		types, err := store.TopOutgoingTypes(ctx, "C100", firstSteps, 5)
		require.NoError(t, err)
		assert.Equal(t, []TypeCount{
			{Type: TypeTransfer, Count: 2},
			{Type: TypeCashOut, Count: 1},
			{Type: TypePayment, Count: 1},
		}, types)

		types, err = store.TopOutgoingTypes(ctx, "C100", firstSteps, 1)
		require.NoError(t, err)
		assert.Len(t, types, 1)
	})

	t.Run("LargestRiskyOutgoing", func(t *testing.T) {
		matches, err := store.LargestRiskyOutgoing(ctx, MatchQuery{Account: "C100", MinAmount: 200000, Limit: 10})
		require.NoError(t, err)
		require.Len(t, matches, 4)
		assert.Equal(t, 900000.0, matches[0].Amount)
		assert.Equal(t, 300000.0, matches[1].Amount)
		assert.Equal(t, 250000.0, matches[2].Amount)
		assert.Equal(t, 250000.0, matches[3].Amount)
		assert.Less(t, matches[2].ID, matches[3].ID)
		for _, m := range matches {
			assert.True(t, m.Type.IsRisky())
		}

		matches, err = store.LargestRiskyOutgoing(ctx, MatchQuery{Account: "C100", MinAmount: 200000, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, matches, 2)

		matches, err = store.LargestRiskyOutgoing(ctx, MatchQuery{Account: "C100", MinAmount: 5_000_000, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("OutgoingStats", func(t *testing.T) {
		stats, err := store.OutgoingStats(ctx, "C100")
		require.NoError(t, err)
		assert.Equal(t, int64(5), stats.Count)
		assert.InDelta(t, 341000.0, stats.Average, 0.001)
		assert.Equal(t, 900000.0, stats.Max)
		assert.InDelta(t, 780000.0, stats.P95, 0.001)
		assert.Equal(t, 1, stats.StepMin)
		assert.Equal(t, 250, stats.StepMax)
	})

	t.Run("RiskyOutgoingStats", func(t *testing.T) {
		stats, err := store.RiskyOutgoingStats(ctx, "C100")
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.Count)
		assert.Equal(t, 900000.0, stats.Max)
		assert.InDelta(t, 810000.0, stats.P95, 0.001)

		stats, err = store.RiskyOutgoingStats(ctx, "C200")
		require.NoError(t, err)
		assert.Equal(t, &RiskyStats{}, stats)
	})

	t.Run("ListByAccount", func(t *testing.T) {
		page, err := store.ListByAccount(ctx, PageQuery{Account: "C100", AfterStep: -1, Limit: 3})
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{page[0].Step, page[1].Step, page[2].Step})

		last := page[2]
		page, err = store.ListByAccount(ctx, PageQuery{Account: "C100", AfterStep: last.Step, AfterID: last.ID, Limit: 10})
		require.NoError(t, err)
		require.Len(t, page, 3)
		assert.Equal(t, 5, page[0].Step)
		assert.Equal(t, "C100", page[0].DestinationAccount)
		assert.Equal(t, 250, page[2].Step)
	})

	t.Run("Overview", func(t *testing.T) {
		ov, err := store.Overview(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, int64(7), ov.N)
		assert.Equal(t, int64(1), ov.NFraud)
		assert.InDelta(t, 1.0/7.0, ov.FraudRate, 1e-9)
		assert.Equal(t, 1, ov.StepMin)
		assert.Equal(t, 250, ov.StepMax)
		require.Len(t, ov.TopTypes, 4)
		assert.Equal(t, TypeCount{Type: TypeTransfer, Count: 3}, ov.TopTypes[0])
		assert.Equal(t, TypeCount{Type: TypePayment, Count: 2}, ov.TopTypes[1])
	})

	t.Run("ListAccounts", func(t *testing.T) {
		names, err := store.ListAccounts(ctx, 800)
		require.NoError(t, err)
		assert.Equal(t, []string{"C100", "C200", "M1", "M2", "M3", "M4", "M5"}, names)

		names, err = store.ListAccounts(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"C100", "C200"}, names)
	})

	t.Run("BusiestOriginAndCount", func(t *testing.T) {
		name, err := store.BusiestOrigin(ctx)
		require.NoError(t, err)
		assert.Equal(t, "C100", name)

		count, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(7), count)

		assert.NoError(t, store.Ping(ctx))
	})
}
