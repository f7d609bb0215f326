package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

// reduceMinAmount is the amount above which every row is kept.
const reduceMinAmount = 100000

// Keep reports whether a row belongs in a reduced export: large amounts,
// labeled fraud and every TRANSFER or CASH_OUT.
func Keep(tx *transactions.Transaction) bool {
	return tx.Amount > reduceMinAmount || tx.IsFraud || tx.Type.IsRisky()
}

// ReduceResult counts the rows a reduction read and wrote.
type ReduceResult struct {
	Read int `json:"read"`
	Kept int `json:"kept"`
}

// Reduce copies the rows of r that Keep accepts to w, stopping once maxRows
// rows are written. The header and the raw field text are preserved.
func Reduce(r io.Reader, w io.Writer, maxRows int) (*ReduceResult, error) {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	reader, err := NewReader(r)
	if err != nil {
		return nil, err
	}

	out := csv.NewWriter(w)
	if err := out.Write(reader.Header()); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	res := &ReduceResult{}
	for res.Kept < maxRows {
		tx, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, err
		}
		res.Read++
		if !Keep(tx) {
			continue
		}
		if err := out.Write(reader.Record()); err != nil {
			return res, fmt.Errorf("failed to write row: %w", err)
		}
		res.Kept++
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return res, fmt.Errorf("failed to flush output: %w", err)
	}
	return res, nil
}
