// This file implements utilities for decoding JSON bodies and parsing
// query parameters.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 10 << 20
)

// decodeJSON reads a single JSON value from the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errBadRequest)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", errBadRequest)
	}
	return nil
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return data, nil
}

// Amount accepts a JSON number or a user-typed string such as "1.234,50".
// Strings go through the money normalizer.
type Amount float64

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		_, v := core.NormalizeAmount(s)
		*a = Amount(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(f)
	return nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseRecordQuery builds a table query from query parameters: q, type,
// account, from, to, sort (date|account), order (asc|desc), page.
func ParseRecordQuery(q url.Values) (ledger.Query, error) {
	query := ledger.Query{
		Filter: ledger.Filter{
			Search:  sanitizeInput(q.Get("q")),
			Account: sanitizeInput(q.Get("account")),
			From:    strings.TrimSpace(q.Get("from")),
			To:      strings.TrimSpace(q.Get("to")),
		},
		Sort: ledger.SortByDate,
		Desc: true,
		Page: 1,
	}
	if query.Account == ledger.AllAccounts {
		query.Account = ""
	}
	if v := strings.TrimSpace(q.Get("type")); v != "" && !strings.EqualFold(v, "all") {
		t, err := core.ParseTxType(v)
		if err != nil {
			return ledger.Query{}, err
		}
		query.Type = t
	}
	if err := optionalDate(query.From); err != nil {
		return ledger.Query{}, err
	}
	if err := optionalDate(query.To); err != nil {
		return ledger.Query{}, err
	}
	switch v := strings.ToLower(strings.TrimSpace(q.Get("sort"))); v {
	case "", string(ledger.SortByDate):
	case string(ledger.SortByAccount):
		query.Sort = ledger.SortByAccount
	default:
		return ledger.Query{}, fmt.Errorf("%w: unknown sort %q", errBadRequest, v)
	}
	switch v := strings.ToLower(strings.TrimSpace(q.Get("order"))); v {
	case "", "desc":
	case "asc":
		query.Desc = false
	default:
		return ledger.Query{}, fmt.Errorf("%w: unknown order %q", errBadRequest, v)
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return ledger.Query{}, fmt.Errorf("%w: page must be a number", errBadRequest)
		}
		query.Page = p
	}
	return query, nil
}

// ParseBreakdownQuery reads from, to, account, groupBy and category.
func ParseBreakdownQuery(q url.Values) (ledger.BreakdownQuery, error) {
	bq := ledger.BreakdownQuery{
		From:     strings.TrimSpace(q.Get("from")),
		To:       strings.TrimSpace(q.Get("to")),
		Account:  sanitizeInput(q.Get("account")),
		GroupBy:  ledger.GroupBy(strings.ToLower(strings.TrimSpace(q.Get("groupBy")))),
		Category: sanitizeInput(q.Get("category")),
	}
	if bq.GroupBy == "" {
		bq.GroupBy = ledger.ByCategory
	}
	if !bq.GroupBy.Valid() {
		return ledger.BreakdownQuery{}, fmt.Errorf("%w: unknown groupBy %q", errBadRequest, bq.GroupBy)
	}
	if err := optionalDate(bq.From); err != nil {
		return ledger.BreakdownQuery{}, err
	}
	if err := optionalDate(bq.To); err != nil {
		return ledger.BreakdownQuery{}, err
	}
	return bq, nil
}

// monthParam returns the month query parameter, or def when absent.
func monthParam(q url.Values, def string) (string, error) {
	m := strings.TrimSpace(q.Get("month"))
	if m == "" {
		return def, nil
	}
	if err := core.ValidateMonth(m); err != nil {
		return "", err
	}
	return m, nil
}

// intParam parses a positive integer parameter, returning def when absent.
func intParam(q url.Values, name string, def int) (int, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number", errBadRequest, name)
	}
	return n, nil
}

// boolParam reads a boolean query parameter, returning def when it is
// absent or unparsable.
func boolParam(q url.Values, name string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(q.Get(name)))
	if err != nil {
		return def
	}
	return v
}

func optionalDate(s string) error {
	if s == "" {
		return nil
	}
	return core.ValidateDate(s)
}
