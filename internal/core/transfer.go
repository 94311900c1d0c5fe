package core

import (
	"math"
	"strings"
)

// TransferSpec is a movement of money between two accounts. It is the
// single source of truth for a transfer; the two ledger rows are derived
// from it by Legs.
type TransferSpec struct {
	ID          string
	From        string
	To          string
	Date        string
	Time        string
	Amount      float64
	Category    string
	Subcategory string
	Note        string
}

func (t TransferSpec) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(t.From) == "" || strings.TrimSpace(t.To) == "" {
		return ErrEmptyAccount
	}
	if t.From == t.To {
		return ErrSameAccount
	}
	if t.Amount == 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return ErrInvalidAmount
	}
	return nil
}

// Legs derives the outgoing and incoming ledger rows. They carry opposite
// signed amounts of equal magnitude, share date, time and transfer id, and
// reference each other's account in ToAccount.
func (t TransferSpec) Legs() (out Tx, in Tx) {
	amount := math.Abs(t.Amount)
	category := t.Category
	if strings.TrimSpace(category) == "" {
		category = TransferCategory
	}
	out = Tx{
		ID:          t.ID + "-out",
		Type:        Transfer,
		Account:     t.From,
		ToAccount:   t.To,
		Date:        t.Date,
		Time:        t.Time,
		Amount:      -amount,
		Category:    category,
		Subcategory: t.Subcategory,
		Note:        t.Note,
		TransferID:  t.ID,
	}
	in = out
	in.ID = t.ID + "-in"
	in.Account = t.To
	in.ToAccount = t.From
	in.Amount = amount
	return out, in
}
