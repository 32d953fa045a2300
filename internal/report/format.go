package report

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUSD renders a USD amount: four decimal places under a dollar so
// sub-cent Lambda-scale charges stay visible, two otherwise.
func FormatUSD(amount decimal.Decimal) string {
	if amount.Abs().LessThan(decimal.NewFromInt(1)) && !amount.IsZero() {
		return amount.StringFixed(4)
	}
	return amount.StringFixed(2)
}

// FormatKRW renders a KRW amount rounded to whole won with thousands
// separators.
func FormatKRW(amount decimal.Decimal) string {
	return groupThousands(amount.Round(0).StringFixed(0))
}

// FormatRate renders an exchange-rate figure with two decimals and
// thousands separators.
func FormatRate(rate decimal.Decimal) string {
	return groupThousands(rate.StringFixed(2))
}

// groupThousands inserts comma separators into the integer part of a
// non-negative decimal string.
func groupThousands(s string) string {
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	n := len(intPart)
	if n <= 3 {
		if hasFrac {
			return intPart + "." + fracPart
		}
		return intPart
	}

	var b strings.Builder
	rem := n % 3
	if rem > 0 {
		b.WriteString(intPart[:rem])
	}
	for i := rem; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}

	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}
