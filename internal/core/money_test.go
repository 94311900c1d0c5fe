package core

import "testing"

func TestNormalizeAmount(t *testing.T) {
	cases := []struct {
		in      string
		display string
		value   float64
	}{
		{"1.234,5", "1.234,50", 1234.5},
		{"1234,56", "1.234,56", 1234.56},
		{"1.234", "1.234,00", 1234},
		{"12,345", "12,35", 12.35},
		{"-50", "-50,00", -50},
		{"-1.000.000,99", "-1.000.000,99", -1000000.99},
		{"€ 7,5", "7,50", 7.5},
		{"€ -12,50", "-12,50", -12.5},
		{"EUR -1.234,5", "-1.234,50", -1234.5},
		{"-€12,50", "-12,50", -12.5},
		{" 2,50 ", "2,50", 2.5},
		{",75", "0,75", 0.75},
		{"", "0,00", 0},
		{"abc", "0,00", 0},
		{"-", "0,00", 0},
		{"999", "999,00", 999},
		{"1000", "1.000,00", 1000},
	}
	for _, tc := range cases {
		display, value := NormalizeAmount(tc.in)
		if display != tc.display || value != tc.value {
			t.Fatalf("%q expected (%q, %v), got (%q, %v)", tc.in, tc.display, tc.value, display, value)
		}
	}
}

func TestNormalizeAmountIdempotent(t *testing.T) {
	inputs := []string{"1.234,5", "0,01", "-12,3", "1.000.000", "3,14159", "42", "-0,004", "€ -12,50", "EUR -1.234,5"}
	for _, in := range inputs {
		display, value := NormalizeAmount(in)
		again, value2 := NormalizeAmount(display)
		if value != value2 || display != again {
			t.Fatalf("%q not idempotent: (%q, %v) then (%q, %v)", in, display, value, again, value2)
		}
	}
}

func TestParseAmountKeepsPrecision(t *testing.T) {
	if got := ParseAmount("3,14159"); got != 3.14159 {
		t.Fatalf("expected 3.14159, got %v", got)
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in  float64
		out string
	}{
		{0, "0,00"},
		{0.5, "0,50"},
		{-0.75, "-0,75"},
		{123456.789, "123.456,79"},
		{-1234.5, "-1.234,50"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.in); got != tc.out {
			t.Fatalf("%v expected %q, got %q", tc.in, tc.out, got)
		}
	}
}
