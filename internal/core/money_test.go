package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half away from zero
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := ParseAmount(c.in)
		if c.ok {
			if err != nil {
				t.Fatalf("%q: unexpected error %v", c.in, err)
			}
			if !got.Equal(decimal.RequireFromString(c.out)) {
				t.Fatalf("%q: got %s want %s", c.in, got, c.out)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%q: expected error", c.in)
		}
	}
}

func TestCentsRoundTrip(t *testing.T) {
	for _, s := range []string{"0.01", "10.10", "1234.56", "0.1"} {
		d := decimal.RequireFromString(s)
		if got := FromCents(Cents(d)); !got.Equal(d) {
			t.Fatalf("%s: got %s", s, got)
		}
	}
}

func TestNewSummaryBalance(t *testing.T) {
	s := NewSummary(10010, 20, 3)
	if !s.TotalIncome.Sub(s.TotalExpense).Equal(s.Balance) {
		t.Fatalf("balance %s != income %s - expense %s", s.Balance, s.TotalIncome, s.TotalExpense)
	}
	if s.Balance.String() != "99.9" {
		t.Fatalf("balance = %s", s.Balance)
	}
}
