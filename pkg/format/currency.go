// Package format renders money for people.
package format

import (
	"fmt"

	"github.com/iwvelando/loan-engine/pkg/mathutil"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Currency returns a currency string with a dollar sign and thousands separators (e.g., "-$1,234.56").
func Currency(amount decimal.Decimal) string {
	formatted := NumericCurrency(amount.Abs())
	if amount.Round(2).IsNegative() {
		return "-$" + formatted
	}
	return "$" + formatted
}

// NumericCurrency returns a currency string without a currency symbol but with separators (e.g., "-1,234.56").
func NumericCurrency(amount decimal.Decimal) string {
	rounded := mathutil.Round(amount)
	whole := rounded.Truncate(0)
	cents := rounded.Sub(whole).Abs().Shift(2).IntPart()

	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	return sign + printer.Sprintf("%d", whole.Abs().IntPart()) + fmt.Sprintf(".%02d", cents)
}
