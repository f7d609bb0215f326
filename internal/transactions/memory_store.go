package transactions

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
// It answers every query with a linear scan.
type MemoryStore struct {
	mu     sync.RWMutex
	txs    []*Transaction
	byID   map[int64]*Transaction
	nextID int64
}

// NewMemoryStore creates an in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[int64]*Transaction),
		nextID: 1,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) Outgoing(ctx context.Context, account string, steps StepRange) (FlowTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f FlowTotals
	for _, tx := range s.txs {
		if tx.OriginAccount != account || !steps.Contains(tx.Step) {
			continue
		}
		f.Count++
		f.Total += tx.Amount
		if tx.IsFraud {
			f.Fraud++
		}
	}
	return f, nil
}

func (s *MemoryStore) Incoming(ctx context.Context, account string, steps StepRange) (FlowTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var f FlowTotals
	for _, tx := range s.txs {
		if tx.DestinationAccount != account || !steps.Contains(tx.Step) {
			continue
		}
		f.Count++
		f.Total += tx.Amount
		if tx.IsFraud {
			f.Fraud++
		}
	}
	return f, nil
}

func (s *MemoryStore) TopOutgoingTypes(ctx context.Context, account string, steps StepRange, limit int) ([]TypeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[Type]int64)
	for _, tx := range s.txs {
		if tx.OriginAccount == account && steps.Contains(tx.Step) {
			counts[tx.Type]++
		}
	}
	return rankTypes(counts, limit), nil
}

func (s *MemoryStore) LargestRiskyOutgoing(ctx context.Context, q MatchQuery) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, tx := range s.txs {
		if tx.OriginAccount == q.Account && tx.Type.IsRisky() && tx.Amount >= q.MinAmount {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) OutgoingStats(ctx context.Context, account string) (*OutgoingStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &OutgoingStats{}
	var amounts []float64
	var total float64
	for _, tx := range s.txs {
		if tx.OriginAccount != account {
			continue
		}
		if stats.Count == 0 || tx.Step < stats.StepMin {
			stats.StepMin = tx.Step
		}
		if stats.Count == 0 || tx.Step > stats.StepMax {
			stats.StepMax = tx.Step
		}
		stats.Count++
		total += tx.Amount
		amounts = append(amounts, tx.Amount)
	}
	if stats.Count == 0 {
		return stats, nil
	}
	sort.Float64s(amounts)
	stats.Average = total / float64(stats.Count)
	stats.Max = amounts[len(amounts)-1]
	stats.P95 = percentile(amounts, 0.95)
	return stats, nil
}

func (s *MemoryStore) RiskyOutgoingStats(ctx context.Context, account string) (*RiskyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var amounts []float64
	for _, tx := range s.txs {
		if tx.OriginAccount == account && tx.Type.IsRisky() {
			amounts = append(amounts, tx.Amount)
		}
	}
	stats := &RiskyStats{Count: int64(len(amounts))}
	if len(amounts) == 0 {
		return stats, nil
	}
	sort.Float64s(amounts)
	stats.Max = amounts[len(amounts)-1]
	stats.P95 = percentile(amounts, 0.95)
	return stats, nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, q PageQuery) ([]*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Transaction
	for _, tx := range s.txs {
		if tx.OriginAccount != q.Account && tx.DestinationAccount != q.Account {
			continue
		}
		if tx.Step < q.AfterStep || (tx.Step == q.AfterStep && tx.ID <= q.AfterID) {
			continue
		}
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Step != out[j].Step {
			return out[i].Step < out[j].Step
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) Overview(ctx context.Context, topTypes int) (*Overview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ov := &Overview{TopTypes: []TypeCount{}}
	counts := make(map[Type]int64)
	for i, tx := range s.txs {
		ov.N++
		if tx.IsFraud {
			ov.NFraud++
		}
		if i == 0 || tx.Step < ov.StepMin {
			ov.StepMin = tx.Step
		}
		if i == 0 || tx.Step > ov.StepMax {
			ov.StepMax = tx.Step
		}
		counts[tx.Type]++
	}
	if ov.N > 0 {
		ov.FraudRate = float64(ov.NFraud) / float64(ov.N)
	}
	ov.TopTypes = rankTypes(counts, topTypes)
	return ov, nil
}

func (s *MemoryStore) ListAccounts(ctx context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, tx := range s.txs {
		seen[tx.OriginAccount] = struct{}{}
		seen[tx.DestinationAccount] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (s *MemoryStore) BusiestOrigin(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, tx := range s.txs {
		counts[tx.OriginAccount]++
	}
	best, bestN := "", 0
	for name, n := range counts {
		if n > bestN || (n == bestN && name < best) {
			best, bestN = name, n
		}
	}
	if best == "" {
		return "", ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) IDRange(ctx context.Context) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.txs) == 0 {
		return 0, 0, ErrNotFound
	}
	return s.txs[0].ID, s.txs[len(s.txs)-1].ID, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.txs)), nil
}

// BulkInsert appends copies of txs, assigning sequential IDs.
func (s *MemoryStore) BulkInsert(ctx context.Context, txs []*Transaction) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		cp := *tx
		cp.ID = s.nextID
		s.nextID++
		s.txs = append(s.txs, &cp)
		s.byID[cp.ID] = &cp
	}
	return len(txs), nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// rankTypes orders counts by count descending, then type name ascending.
func rankTypes(counts map[Type]int64, limit int) []TypeCount {
	out := make([]TypeCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, TypeCount{Type: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
