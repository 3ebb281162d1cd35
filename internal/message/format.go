package message

import (
	"math/big"
	"strings"
)

// DefaultPrecision is the number of decimal places in formatted amounts
const DefaultPrecision = 3

// FormatNumber formats a decimal-string amount with comma thousands
// separators and a fixed number of decimal places. The integer part is
// processed digit by digit over an arbitrary-precision integer, never a
// float, so output is deterministic for any amount the chain can produce.
// The decimal part is rounded (half up) to the precision, padding with
// zeros when shorter.
func FormatNumber(amount string, precision int) string {
	integerPart, decimalPart, _ := strings.Cut(amount, ".")

	intVal, ok := new(big.Int).SetString(integerPart, 10)
	if !ok {
		// Not a decimal string; return as-is rather than guessing
		return amount
	}

	var rounded string
	if decimalPart != "" && precision > 0 {
		var carry bool
		rounded, carry = roundDecimals(decimalPart, precision)
		if carry {
			intVal.Add(intVal, big.NewInt(1))
		}
	}

	formatted := groupThousands(intVal.String())
	if rounded == "" {
		return formatted
	}
	return formatted + "." + rounded
}

// groupThousands inserts a comma before every group of three digits
func groupThousands(digits string) string {
	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3)

	start := 0
	if digits[0] == '-' {
		b.WriteByte('-')
		start = 1
	}

	for i := start; i < len(digits); i++ {
		if i > start && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(digits[i])
	}
	return b.String()
}

// roundDecimals rounds a string of decimal digits half-up to the given
// precision. The returned carry is true when rounding overflowed into the
// integer part (e.g. "9999" at precision 3).
func roundDecimals(digits string, precision int) (string, bool) {
	if len(digits) <= precision {
		return digits + strings.Repeat("0", precision-len(digits)), false
	}

	kept := []byte(digits[:precision])
	if digits[precision] < '5' {
		return string(kept), false
	}

	for i := precision - 1; i >= 0; i-- {
		if kept[i] < '9' {
			kept[i]++
			return string(kept), false
		}
		kept[i] = '0'
	}
	return string(kept), true
}
