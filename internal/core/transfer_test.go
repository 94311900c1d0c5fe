package core

import "testing"

func TestTransferLegs(t *testing.T) {
	spec := TransferSpec{ID: "t1", From: "Checking", To: "Savings", Date: "2025-03-01", Time: "08:30:00", Amount: 250}
	if err := spec.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	out, in := spec.Legs()

	if out.Amount != -250 || in.Amount != 250 {
		t.Fatalf("expected opposite equal amounts, got %v / %v", out.Amount, in.Amount)
	}
	if out.ToAccount != in.Account || in.ToAccount != out.Account {
		t.Fatalf("legs must reference each other: %+v %+v", out, in)
	}
	if out.Date != in.Date || out.Time != in.Time {
		t.Fatalf("legs must share date and time")
	}
	if out.TransferID != "t1" || in.TransferID != "t1" || out.ID == in.ID {
		t.Fatalf("unexpected ids: %q %q", out.ID, in.ID)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("out leg invalid: %v", err)
	}
	if err := in.Validate(); err != nil {
		t.Fatalf("in leg invalid: %v", err)
	}
}

func TestTransferSameAccount(t *testing.T) {
	spec := TransferSpec{ID: "t1", From: "Cash", To: "Cash", Amount: 1}
	if err := spec.Validate(); err != ErrSameAccount {
		t.Fatalf("expected ErrSameAccount, got %v", err)
	}
}
