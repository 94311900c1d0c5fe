package core

import (
	"errors"
	"testing"
)

func validTx() Tx {
	return Tx{
		ID:       "a",
		Type:     Expense,
		Account:  "Cash",
		Date:     "2025-01-31",
		Time:     "10:00:00",
		Amount:   -12.5,
		Category: "Food",
	}
}

func TestTxValidate(t *testing.T) {
	if err := validTx().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Tx)
		want   error
	}{
		{"empty id", func(tx *Tx) { tx.ID = "" }, ErrEmptyID},
		{"bad type", func(tx *Tx) { tx.Type = "Refund" }, ErrInvalidType},
		{"empty account", func(tx *Tx) { tx.Account = " " }, ErrEmptyAccount},
		{"bad date", func(tx *Tx) { tx.Date = "2025-02-30" }, ErrInvalidDate},
		{"bad time", func(tx *Tx) { tx.Time = "25:00:00" }, ErrInvalidTime},
		{"zero amount", func(tx *Tx) { tx.Amount = 0 }, ErrInvalidAmount},
		{"empty category", func(tx *Tx) { tx.Category = "" }, ErrEmptyCategory},
		{"transfer without destination", func(tx *Tx) { tx.Type = Transfer }, ErrEmptyToAccount},
		{"transfer to itself", func(tx *Tx) { tx.Type = Transfer; tx.ToAccount = "Cash" }, ErrSameAccount},
	}
	for _, tc := range cases {
		tx := validTx()
		tc.mutate(&tx)
		if err := tx.Validate(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestParseTxType(t *testing.T) {
	if got, err := ParseTxType(" income "); err != nil || got != Income {
		t.Fatalf("expected Income, got %q (err=%v)", got, err)
	}
	if _, err := ParseTxType("refund"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSignedAmount(t *testing.T) {
	if SignedAmount(Expense, 10) != -10 || SignedAmount(Expense, -10) != -10 {
		t.Fatalf("expenses must be outflows")
	}
	if SignedAmount(Income, -10) != 10 {
		t.Fatalf("income must be an inflow")
	}
}

func TestGoalContribute(t *testing.T) {
	g := Goal{ID: "g", Name: "Trip", TargetAmount: 1000, CurrentAmount: 100.1}
	if err := g.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	g, err := g.Contribute(0.2)
	if err != nil || g.CurrentAmount != 100.3 {
		t.Fatalf("unexpected contribution result: %v (err=%v)", g.CurrentAmount, err)
	}
	if _, err := g.Contribute(0); err == nil {
		t.Fatalf("expected error for zero contribution")
	}
	if err := (Goal{ID: "g", Name: "x", TargetAmount: 0}).Validate(); err == nil {
		t.Fatalf("expected error for zero target")
	}
}

func TestBudgetValidate(t *testing.T) {
	if err := (Budget{Essentials: 1}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (Budget{Savings: -1}).Validate(); err == nil {
		t.Fatalf("expected error")
	}
}
