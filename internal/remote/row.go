package remote

import (
	"fmt"
	"math"

	"fintrack/internal/core"
)

// Row is a records-table row as read from the database or a notification
// payload. Pointer fields are nullable columns.
type Row struct {
	ID          string   `json:"id"`
	UserID      string   `json:"user_id"`
	Type        string   `json:"type"`
	Account     string   `json:"account"`
	ToAccount   *string  `json:"to_account"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Amount      *float64 `json:"amount"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Note        *string  `json:"note"`
	TransferID  *string  `json:"transfer_id"`
}

// ValidateRow converts a row to a record. Missing or invalid fields are
// rejected with ErrMalformedRow rather than defaulted.
func ValidateRow(r Row) (core.Tx, error) {
	if r.Amount == nil || math.IsNaN(*r.Amount) || math.IsInf(*r.Amount, 0) {
		return core.Tx{}, fmt.Errorf("%w: %s: amount missing", ErrMalformedRow, r.ID)
	}
	typ, err := core.ParseTxType(r.Type)
	if err != nil {
		return core.Tx{}, fmt.Errorf("%w: %s: %v", ErrMalformedRow, r.ID, err)
	}
	tx := core.Tx{
		ID:          r.ID,
		Type:        typ,
		Account:     r.Account,
		ToAccount:   deref(r.ToAccount),
		Date:        r.Date,
		Time:        r.Time,
		Amount:      *r.Amount,
		Category:    r.Category,
		Subcategory: r.Subcategory,
		Note:        deref(r.Note),
		TransferID:  deref(r.TransferID),
	}
	if err := tx.Validate(); err != nil {
		return core.Tx{}, fmt.Errorf("%w: %s: %v", ErrMalformedRow, r.ID, err)
	}
	return tx, nil
}

// RowFromTx is the inverse of ValidateRow.
func RowFromTx(userID string, tx core.Tx) Row {
	amount := tx.Amount
	return Row{
		ID:          tx.ID,
		UserID:      userID,
		Type:        string(tx.Type),
		Account:     tx.Account,
		ToAccount:   ref(tx.ToAccount),
		Date:        tx.Date,
		Time:        tx.Time,
		Amount:      &amount,
		Category:    tx.Category,
		Subcategory: tx.Subcategory,
		Note:        ref(tx.Note),
		TransferID:  ref(tx.TransferID),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ref(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
