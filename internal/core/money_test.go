package core

import (
	"errors"
	"testing"
)

func TestParseAmountToCents(t *testing.T) {
	cases := []struct {
		in   string
		out  int64
		kind error
	}{
		{"1", 100, nil},
		{"1.0", 100, nil},
		{"1.23", 123, nil},
		{"1,23", 123, nil},
		{"0.01", 1, nil},
		{"0", 0, nil},
		{"1.00", 100, nil},
		{"15.49", 1549, nil},
		{"1.005", 101, nil}, // half-up rounding
		{"1.004", 100, nil},
		{" 2.50 ", 250, nil},
		{"$15.49", 1549, nil},
		{"€ 15,49", 1549, nil},
		{"1,234.56", 123456, nil},
		{"1.234,56", 123456, nil},
		{"1,234,567", 123456700, nil},
		{"1 234,56", 123456, nil},
		{".5", 50, nil},
		{"+3", 300, nil},
		{"-1", 0, ErrOutOfRange},
		{"-$4.20", 0, ErrOutOfRange},
		{"abc", 0, ErrInvalidNumber},
		{"1.2.3", 0, ErrInvalidNumber},
		{"1,2,3", 0, ErrInvalidNumber},
		{"12a", 0, ErrInvalidNumber},
		{"1e3", 0, ErrInvalidNumber},
		{".", 0, ErrInvalidNumber},
		{"", 0, ErrInvalidNumber},
		{"99999999999999999999", 0, ErrInvalidNumber},
	}
	for _, tc := range cases {
		got, err := ParseAmountToCents(tc.in)
		if tc.kind == nil {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, tc.kind) {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.kind, err)
		}
	}
}

func TestParseAmountToCents_TwoDecimalProperty(t *testing.T) {
	// For every "d.dd" the result is exactly the integer formed by the digits.
	for units := 0; units < 30; units++ {
		for frac := 0; frac < 100; frac++ {
			in := Money{Cents: int64(units*100 + frac)}.String()
			got, err := ParseAmountToCents(in)
			if err != nil {
				t.Fatalf("%q: unexpected error %v", in, err)
			}
			if want := int64(units*100 + frac); got != want {
				t.Fatalf("%q: got %d, want %d", in, got, want)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		5:      "0.05",
		1549:   "15.49",
		123456: "1234.56",
		-250:   "-2.50",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Errorf("Money{%d}.String() = %q, want %q", cents, got, want)
		}
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := (Money{Cents: 0}).Validate(); err != nil {
		t.Fatalf("expected zero to be valid, got %v", err)
	}
	if err := (Money{Cents: -1}).Validate(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
