package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func token(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func TestCursor_RoundTrip(t *testing.T) {
	in := Cursor{Account: "C1231006815", Step: 17, ID: 90210}

	out, err := Decode(in.Encode(), "C1231006815")
	require.NoError(t, err)
	assert.Equal(t, &in, out)
}

func TestDecode_EmptyIsFirstPage(t *testing.T) {
	c, err := Decode("", "C1")
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecode_OtherAccount(t *testing.T) {
	tok := Cursor{Account: "C1", Step: 1, ID: 2}.Encode()
	_, err := Decode(tok, "C2")
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestDecode_Invalid(t *testing.T) {
	tests := map[string]string{
		"not base64":    "!!",
		"too few parts": token("h1\x1fC1\x1f1"),
		"wrong version": token("h0\x1fC1\x1f1\x1f2"),
		"bad step":      token("h1\x1fC1\x1fx\x1f2"),
		"negative id":   token("h1\x1fC1\x1f1\x1f-2"),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(in, "C1")
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

type row struct {
	step int
	id   int64
}

func key(r row) (int, int64) { return r.step, r.id }

func TestPage_HasMore(t *testing.T) {
	rows := []row{{1, 10}, {1, 11}, {2, 5}}

	page, next, more := Page(rows, 2, "C1", key)
	assert.Equal(t, []row{{1, 10}, {1, 11}}, page)
	assert.True(t, more)

	c, err := Decode(next, "C1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Step)
	assert.Equal(t, int64(11), c.ID)
}

func TestPage_LastPage(t *testing.T) {
	page, next, more := Page([]row{{1, 10}}, 2, "C1", key)
	assert.Len(t, page, 1)
	assert.False(t, more)
	assert.Empty(t, next)

	page, _, more = Page([]row(nil), 2, "C1", key)
	assert.Empty(t, page)
	assert.False(t, more)
}
