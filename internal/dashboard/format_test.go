package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{12.5, "12.50"},
		{1234.567, "1,234.57"},
		{10000000, "10,000,000.00"},
		{-2500, "-2,500.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatAmount(tt.in), "formatAmount(%v)", tt.in)
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "7", formatCount(7))
	assert.Equal(t, "6,362,620", formatCount(6362620))
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "0.13%", formatPercent(0.00129))
	assert.Equal(t, "100.00%", formatPercent(1))
}
