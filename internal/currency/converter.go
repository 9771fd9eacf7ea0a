package currency

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBRL parses a Brazilian-formatted amount such as "R$ 1.234,56",
// "1234,56" or "1234.56". A lone dot followed by exactly one or two digits
// is read as the decimal separator; any other dot is a thousands separator.
// The result is rounded to cents.
func ParseBRL(s string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "R$")
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.ReplaceAll(raw, "\u00a0", "")
	if raw == "" {
		return decimal.Zero, nil
	}

	switch {
	case strings.Contains(raw, ","):
		raw = strings.ReplaceAll(raw, ".", "")
		raw = strings.Replace(raw, ",", ".", 1)
	case strings.Count(raw, ".") == 1:
		if i := strings.Index(raw, "."); len(raw)-i-1 > 2 {
			raw = strings.Replace(raw, ".", "", 1)
		}
	default:
		raw = strings.ReplaceAll(raw, ".", "")
	}

	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v.Round(2), nil
}

// FormatBRL renders v as "R$ 1.234,56".
func FormatBRL(v decimal.Decimal) string {
	neg := v.IsNegative()
	fixed := v.Abs().StringFixed(2)
	intPart, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "R$ " + b.String() + "," + frac
	if neg {
		out = "-" + out
	}
	return out
}

// Percent renders a discount fraction (0.95) as "95%".
func Percent(fraction decimal.Decimal) string {
	return fraction.Mul(decimal.NewFromInt(100)).Round(0).String() + "%"
}
