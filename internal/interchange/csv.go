package interchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fintrack/internal/core"
)

var csvHeader = []string{
	"id", "date", "time", "type", "account", "to_account",
	"amount", "category", "subcategory", "note", "transfer_id",
}

// WriteCSV writes one row per record with a header. Amounts use a decimal
// point and two decimals.
func WriteCSV(w io.Writer, records []core.Tx) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, tx := range records {
		row := []string{
			tx.ID, tx.Date, tx.Time, string(tx.Type), tx.Account, tx.ToAccount,
			strconv.FormatFloat(core.RoundCents(tx.Amount), 'f', 2, 64),
			tx.Category, tx.Subcategory, tx.Note, tx.TransferID,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses rows written by WriteCSV. Columns are matched by header
// name so extra or reordered columns are accepted. Amounts may use either
// a decimal point or the locale form ("1.234,50").
func ReadCSV(r io.Reader) ([]core.Tx, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv is empty")
	}

	col := map[string]int{}
	for i, h := range rows[0] {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "date", "type", "account", "amount"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("csv header missing %q", required)
		}
	}

	out := make([]core.Tx, 0, len(rows)-1)
	for line, row := range rows[1:] {
		get := func(name string) string {
			i, ok := col[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		typ, err := core.ParseTxType(get("type"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		out = append(out, core.Tx{
			ID:          get("id"),
			Type:        typ,
			Account:     get("account"),
			ToAccount:   get("to_account"),
			Date:        get("date"),
			Time:        get("time"),
			Amount:      csvAmount(get("amount")),
			Category:    get("category"),
			Subcategory: get("subcategory"),
			Note:        get("note"),
			TransferID:  get("transfer_id"),
		})
	}
	return out, nil
}

// csvAmount reads the decimal-point form only when it cannot be a locale
// amount: no comma and at most one period followed by exactly two digits.
// "1.234" is one thousand two hundred thirty-four.
func csvAmount(s string) float64 {
	s = strings.TrimSpace(s)
	if pointForm(s) {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return v
		}
	}
	return core.ParseAmount(s)
}

func pointForm(s string) bool {
	if strings.Contains(s, ",") {
		return false
	}
	switch strings.Count(s, ".") {
	case 0:
		return true
	case 1:
		return len(s)-strings.Index(s, ".") == 3
	default:
		return false
	}
}
