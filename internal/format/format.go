// Package format renders amounts the way the invoice is displayed: Indian
// digit grouping, at most two fraction digits.
package format

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Amount renders v with en-IN grouping (1,23,45,678.9) rounded half away
// from zero to two fraction digits, trailing zeros dropped.
func Amount(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}

	intPart, frac, _ := strings.Cut(d.String(), ".")
	out := sign + groupIndian(intPart)
	if frac != "" {
		out += "." + frac
	}
	return out
}

// Money prefixes Amount with a currency symbol.
func Money(symbol string, v float64) string {
	return symbol + Amount(v)
}

// Fixed2 renders v with exactly two decimals and no grouping.
func Fixed2(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// Percent1 renders v with one decimal followed by a percent sign.
func Percent1(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(1) + "%"
}

// groupIndian groups the last three digits, then every two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var b strings.Builder
	lead := len(head) % 2
	if lead == 1 {
		b.WriteString(head[:1])
	}
	for i := lead; i < len(head); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(head[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(tail)
	return b.String()
}
