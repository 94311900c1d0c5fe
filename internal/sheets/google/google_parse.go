package google

import (
	"fmt"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

// Ledger tab layout, one record per row after the header.
var ledgerHeader = []any{
	"ID", "Namespace", "Date", "Time", "Type", "Account", "To account",
	"Amount", "Category", "Subcategory", "Note", "Transfer ID",
}

const (
	colID = iota
	colNamespace
	colDate
	colTime
	colType
	colAccount
	colToAccount
	colAmount
	colCategory
	colSubcategory
	colNote
	colTransferID
	numCols
)

// lastCol is the column letter of the final ledger column.
const lastCol = "L"

func rowValues(namespace string, tx core.Tx) []any {
	return []any{
		tx.ID, namespace, tx.Date, tx.Time, string(tx.Type), tx.Account, tx.ToAccount,
		tx.Amount, tx.Category, tx.Subcategory, tx.Note, tx.TransferID,
	}
}

// parseLedgerRow converts one sheet row back to a record.
func parseLedgerRow(cells []any) (namespace string, tx core.Tx, err error) {
	if len(cells) < colAmount+1 {
		return "", core.Tx{}, fmt.Errorf("row has %d cells", len(cells))
	}
	get := func(i int) string {
		if i >= len(cells) || cells[i] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(cells[i]))
	}
	typ, err := core.ParseTxType(get(colType))
	if err != nil {
		return "", core.Tx{}, err
	}
	amount, err := cellAmount(cells[colAmount])
	if err != nil {
		return "", core.Tx{}, err
	}
	tx = core.Tx{
		ID:          get(colID),
		Type:        typ,
		Account:     get(colAccount),
		ToAccount:   get(colToAccount),
		Date:        get(colDate),
		Time:        get(colTime),
		Amount:      amount,
		Category:    get(colCategory),
		Subcategory: get(colSubcategory),
		Note:        get(colNote),
		TransferID:  get(colTransferID),
	}
	return get(colNamespace), tx, nil
}

// cellAmount reads an amount cell, which is a number when values are
// fetched unformatted and a string otherwise.
func cellAmount(v any) (float64, error) {
	switch a := v.(type) {
	case float64:
		return a, nil
	case string:
		s := strings.TrimSpace(a)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f, nil
		}
		if s == "" {
			return 0, fmt.Errorf("empty amount")
		}
		return core.ParseAmount(s), nil
	default:
		return 0, fmt.Errorf("unexpected amount cell %T", v)
	}
}

// locateRows maps the record ids of namespace to their 1-based sheet row.
func locateRows(values [][]any, namespace string) map[string]int {
	out := map[string]int{}
	for i, row := range values {
		if len(row) <= colNamespace {
			continue
		}
		id := strings.TrimSpace(fmt.Sprint(row[colID]))
		if i == 0 && id == ledgerHeader[colID] {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[colNamespace])) == namespace && id != "" {
			out[id] = i + 1
		}
	}
	return out
}
