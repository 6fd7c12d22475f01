package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"financeflow/internal/core"
)

func TestStore(t *testing.T) {
	s := New()
	tx := core.Transaction{ID: 3, Type: core.Income, Amount: decimal.NewFromInt(10), Category: "Salary", Date: core.NewDate(2025, 3, 1)}

	ref, err := s.AppendTransaction(context.Background(), tx)
	if err != nil || ref != "mem:1" {
		t.Fatalf("append = %q, %v", ref, err)
	}

	s.FailWith(errors.New("quota"))
	if _, err := s.AppendTransaction(context.Background(), tx); err == nil {
		t.Fatal("expected failure")
	}
	s.FailWith(nil)

	rows := s.Rows()
	if len(rows) != 1 || rows[0][1] != "Income" || rows[0][3] != "10.00" {
		t.Errorf("rows = %v", rows)
	}
}
