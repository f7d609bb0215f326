package rpcserver

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/fraudlens/paysim-monitor/internal/validation"
)

// args reads typed tool arguments and collects every failure, the way
// validation.Query does for HTTP query strings. JSON numbers arrive as
// float64; numeric strings are accepted too.
type args struct {
	raw  map[string]any
	errs validation.ValidationErrors
}

func newArgs(raw map[string]any) *args {
	if raw == nil {
		raw = map[string]any{}
	}
	return &args{raw: raw}
}

func (a *args) fail(field, msg string) {
	a.errs = append(a.errs, validation.ValidationError{Field: field, Message: msg})
}

// account reads the required account name.
func (a *args) account(field string) string {
	v, ok := a.raw[field]
	if !ok || v == nil {
		a.fail(field, "is required")
		return ""
	}
	s, ok := v.(string)
	if !ok {
		a.fail(field, "must be a string")
		return ""
	}
	s = strings.TrimSpace(s)
	if errs := validation.Validate(
		validation.Required(field, s),
		validation.ValidAccount(field, s),
	); len(errs) > 0 {
		a.errs = append(a.errs, errs...)
		return ""
	}
	return s
}

func (a *args) number(field string) (float64, bool) {
	v, ok := a.raw[field]
	if !ok || v == nil {
		return 0, false
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			a.fail(field, "must be a number")
			return 0, false
		}
		f = parsed
	case string:
		if strings.TrimSpace(n) == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			a.fail(field, "must be a number")
			return 0, false
		}
		f = parsed
	default:
		a.fail(field, "must be a number")
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		a.fail(field, "must be a finite number")
		return 0, false
	}
	return f, true
}

func (a *args) float(field string, def float64) float64 {
	f, ok := a.number(field)
	if !ok {
		return def
	}
	return f
}

func (a *args) int(field string, def int) int {
	f, ok := a.number(field)
	if !ok {
		return def
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		a.fail(field, "must be an integer")
		return def
	}
	return int(f)
}

func (a *args) optionalInt64(field string) *int64 {
	f, ok := a.number(field)
	if !ok {
		return nil
	}
	if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		a.fail(field, "must be an integer")
		return nil
	}
	n := int64(f)
	return &n
}

func (a *args) err() error {
	if len(a.errs) == 0 {
		return nil
	}
	return a.errs
}
