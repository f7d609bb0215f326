package dashboard

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// formatAmount renders an amount with thousands separators and two decimals.
func formatAmount(v float64) string {
	return printer.Sprintf("%.2f", v)
}

// formatCount renders an integer count with thousands separators.
func formatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

// formatPercent renders a 0..1 ratio as a percentage.
func formatPercent(r float64) string {
	return printer.Sprintf("%.2f%%", r*100)
}
