// Package pagination pages through an account's transaction history in
// (step, id) order. Cursors are opaque to clients and bound to the
// account they were issued for.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidCursor is returned for a cursor that was not issued by Page,
// or was issued for a different account.
var ErrInvalidCursor = errors.New("pagination: invalid cursor")

const cursorVersion = "h1"

// Cursor is the key of the last row on a page. The next page starts
// strictly after it.
type Cursor struct {
	Account string
	Step    int
	ID      int64
}

// Encode renders c as a URL-safe token.
func (c Cursor) Encode() string {
	raw := strings.Join([]string{
		cursorVersion,
		c.Account,
		strconv.Itoa(c.Step),
		strconv.FormatInt(c.ID, 10),
	}, "\x1f")
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses token for account. An empty token means the first page and
// returns nil.
func Decode(token, account string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	parts := strings.Split(string(raw), "\x1f")
	if len(parts) != 4 || parts[0] != cursorVersion || parts[1] != account {
		return nil, ErrInvalidCursor
	}
	step, err := strconv.Atoi(parts[2])
	if err != nil || step < 0 {
		return nil, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || id < 0 {
		return nil, ErrInvalidCursor
	}
	return &Cursor{Account: account, Step: step, ID: id}, nil
}

// Page trims rows, fetched with limit+1, to limit. When a row was cut it
// also returns the cursor for the next page.
func Page[T any](rows []T, limit int, account string, key func(T) (int, int64)) (page []T, next string, more bool) {
	if limit <= 0 || len(rows) <= limit {
		return rows, "", false
	}
	page = rows[:limit]
	step, id := key(page[limit-1])
	return page, Cursor{Account: account, Step: step, ID: id}.Encode(), true
}
