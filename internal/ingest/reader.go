// Package ingest loads PaySim CSV exports into a transaction store and
// reduces full exports to the rows the monitor cares about.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fraudlens/paysim-monitor/internal/transactions"
)

// ErrMissingColumns is returned when the header lacks a required column.
var ErrMissingColumns = errors.New("ingest: csv missing columns")

// Column names in the normalized snake_case form.
const (
	colStep           = "step"
	colType           = "type"
	colAmount         = "amount"
	colNameOrig       = "name_orig"
	colOldBalanceOrg  = "oldbalance_org"
	colNewBalanceOrg  = "newbalance_org"
	colNameDest       = "name_dest"
	colOldBalanceDest = "oldbalance_dest"
	colNewBalanceDest = "newbalance_dest"
	colIsFraud        = "is_fraud"
	colIsFlagged      = "is_flagged_fraud"
)

var requiredColumns = []string{
	colStep, colType, colAmount,
	colNameOrig, colOldBalanceOrg, colNewBalanceOrg,
	colNameDest, colOldBalanceDest, colNewBalanceDest,
	colIsFraud, colIsFlagged,
}

// camelColumns maps the original PaySim export headers to snake_case.
var camelColumns = map[string]string{
	"nameOrig":       colNameOrig,
	"oldbalanceOrg":  colOldBalanceOrg,
	"newbalanceOrig": colNewBalanceOrg,
	"nameDest":       colNameDest,
	"oldbalanceDest": colOldBalanceDest,
	"newbalanceDest": colNewBalanceDest,
	"isFraud":        colIsFraud,
	"isFlaggedFraud": colIsFlagged,
}

// Reader decodes PaySim rows from CSV. Both the camelCase headers of the
// original export and snake_case headers are accepted, in any column order.
type Reader struct {
	csv    *csv.Reader
	header []string
	index  map[string]int
	record []string
	line   int
}

// NewReader reads the header from r and checks that every column is present.
func NewReader(r io.Reader) (*Reader, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if snake, ok := camelColumns[name]; ok {
			name = snake
		}
		index[name] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s (found %s)", ErrMissingColumns,
			strings.Join(missing, ", "), strings.Join(header, ", "))
	}

	return &Reader{csv: cr, header: header, index: index, line: 1}, nil
}

// Header returns the header row as it appeared in the input.
func (r *Reader) Header() []string {
	return r.header
}

// Record returns the raw fields of the row last returned by Next.
func (r *Reader) Record() []string {
	return r.record
}

// Next decodes the next row. It returns io.EOF after the last row.
func (r *Reader) Next() (*transactions.Transaction, error) {
	record, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.line++
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line, err)
	}
	r.record = record

	tx, err := r.decode(record)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line, err)
	}
	return tx, nil
}

func (r *Reader) decode(record []string) (*transactions.Transaction, error) {
	field := func(col string) string {
		return strings.TrimSpace(record[r.index[col]])
	}
	var firstErr error
	number := func(col string) float64 {
		v, err := strconv.ParseFloat(field(col), 64)
		if (err != nil || math.IsNaN(v) || math.IsInf(v, 0)) && firstErr == nil {
			firstErr = fmt.Errorf("could not parse %s %q", col, field(col))
		}
		return v
	}

	step, err := strconv.Atoi(field(colStep))
	if err != nil {
		return nil, fmt.Errorf("could not parse step %q", field(colStep))
	}

	tx := &transactions.Transaction{
		Step:                  step,
		Type:                  transactions.Type(strings.ToUpper(field(colType))),
		Amount:                number(colAmount),
		OriginAccount:         field(colNameOrig),
		OriginOldBalance:      number(colOldBalanceOrg),
		OriginNewBalance:      number(colNewBalanceOrg),
		DestinationAccount:    field(colNameDest),
		DestinationOldBalance: number(colOldBalanceDest),
		DestinationNewBalance: number(colNewBalanceDest),
		IsFraud:               ParseBool(field(colIsFraud)),
		IsFlaggedFraud:        ParseBool(field(colIsFlagged)),
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if !tx.Type.Valid() {
		return nil, fmt.Errorf("unknown transaction type %q", field(colType))
	}
	if tx.Amount < 0 {
		return nil, fmt.Errorf("negative amount %v", tx.Amount)
	}
	if tx.OriginAccount == "" || tx.DestinationAccount == "" {
		return nil, errors.New("missing account name")
	}
	return tx, nil
}

// ParseBool reads a label column. 1/true/t/yes/y (any case) and non-zero
// numbers are true; everything else, including blanks, is false.
func ParseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "1", "true", "t", "yes", "y":
		return true
	case "", "0", "false", "f", "no", "n":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f != 0
	}
	return false
}
