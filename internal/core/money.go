// Package core provides money parsing and handling utilities.
//
// This file contains the amount normalizer used by every input path: it
// parses locale-formatted strings (decimal comma, period thousands
// separators) and renders the canonical display form.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeAmount parses a free-form amount and returns its canonical
// display string together with the numeric value rounded to cents.
//
// Everything after the last comma is the fractional part; every period is a
// thousands separator. Garbage coerces to zero. Normalizing the returned
// display string yields the same value.
//
// Examples:
//
//	NormalizeAmount("1.234,5")  -> "1.234,50", 1234.5
//	NormalizeAmount("-12,345")  -> "-12,35", -12.35
//	NormalizeAmount("abc")      -> "0,00", 0
func NormalizeAmount(s string) (string, float64) {
	d := parseDecimal(s).Round(2)
	v := toFloat(d)
	return FormatAmount(v), v
}

// ParseAmount returns the numeric value of a locale-formatted amount
// without rounding.
func ParseAmount(s string) float64 {
	return toFloat(parseDecimal(s))
}

// FormatAmount renders v with period thousands grouping, a decimal comma
// and exactly two decimals (e.g. "1.234,50", "-0,75").
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	d := decimal.NewFromFloat(v).Round(2)
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if d.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(frac)
	return b.String()
}

// RoundCents rounds v half away from zero to two decimals.
func RoundCents(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func parseDecimal(s string) decimal.Decimal {
	var cleaned strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			cleaned.WriteRune(r)
		}
	}
	// The sign is read after currency symbols and codes are stripped.
	c := cleaned.String()
	neg := strings.HasPrefix(c, "-")
	c = strings.ReplaceAll(c, "-", "")

	intPart, fracPart := c, ""
	if i := strings.LastIndex(c, ","); i >= 0 {
		intPart, fracPart = c[:i], c[i+1:]
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	fracPart = strings.ReplaceAll(fracPart, ".", "")
	if intPart == "" {
		intPart = "0"
	}
	num := intPart
	if fracPart != "" {
		num += "." + fracPart
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero
	}
	if neg {
		d = d.Neg()
	}
	return d
}

func toFloat(d decimal.Decimal) float64 {
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	// Avoid -0 leaking into display strings.
	if f == 0 {
		return 0
	}
	return f
}
