package format

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCurrency(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		numeric  string
	}{
		{"0", "$0.00", "0.00"},
		{"5.5", "$5.50", "5.50"},
		{"1234.56", "$1,234.56", "1,234.56"},
		{"1922.2848", "$1,922.28", "1,922.28"},
		{"-1234567.891", "-$1,234,567.89", "-1,234,567.89"},
		{"999.995", "$1,000.00", "1,000.00"},
		{"-0.001", "$0.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			amount := decimal.RequireFromString(tt.amount)
			if got := Currency(amount); got != tt.currency {
				t.Errorf("Currency(%s) = %s, expected %s", tt.amount, got, tt.currency)
			}
			if got := NumericCurrency(amount); got != tt.numeric {
				t.Errorf("NumericCurrency(%s) = %s, expected %s", tt.amount, got, tt.numeric)
			}
		})
	}
}
