package ledger

import (
	"sort"
	"strings"

	"fintrack/internal/core"
)

// PageSize is the number of records per table page.
const PageSize = 10

// SortKey selects the table ordering.
type SortKey string

const (
	SortByDate    SortKey = "date"
	SortByAccount SortKey = "account"
)

// Filter holds the table predicates. Zero values disable a predicate.
type Filter struct {
	Search  string
	Type    core.TxType
	Account string
	From    string
	To      string
}

// Query is the full table request.
type Query struct {
	Filter
	Sort SortKey
	Desc bool
	Page int
}

// Page is one slice of the filtered, sorted records.
type Page struct {
	Items    []core.Tx `json:"items"`
	Page     int       `json:"page"`
	Pages    int       `json:"pages"`
	Total    int       `json:"total"`
	PageSize int       `json:"pageSize"`
}

// Match reports whether tx passes every enabled predicate. The search text
// is matched case-insensitively against category, subcategory, account and
// note.
func (f Filter) Match(tx core.Tx) bool {
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Account != "" && f.Account != AllAccounts && tx.Account != f.Account {
		return false
	}
	if !inRange(tx.Date, f.From, f.To) {
		return false
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		hay := strings.ToLower(tx.Category + "\x00" + tx.Subcategory + "\x00" + tx.Account + "\x00" + tx.Note)
		if !strings.Contains(hay, s) {
			return false
		}
	}
	return true
}

// Apply filters records, keeping their order.
func (f Filter) Apply(records []core.Tx) []core.Tx {
	out := make([]core.Tx, 0, len(records))
	for _, tx := range records {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	return out
}

// Sort orders records in place with a stable sort. Unknown keys sort by
// date.
func Sort(records []core.Tx, key SortKey, desc bool) {
	field := func(tx core.Tx) string { return tx.Key() }
	if key == SortByAccount {
		field = func(tx core.Tx) string { return tx.Account }
	}
	sort.SliceStable(records, func(i, j int) bool {
		if desc {
			return field(records[i]) > field(records[j])
		}
		return field(records[i]) < field(records[j])
	})
}

// PageCount returns the number of pages for total items, at least one.
func PageCount(total int) int {
	if total <= 0 {
		return 1
	}
	return (total + PageSize - 1) / PageSize
}

// ClampPage keeps page inside [1, PageCount(total)].
func ClampPage(page, total int) int {
	pages := PageCount(total)
	if page < 1 {
		return 1
	}
	if page > pages {
		return pages
	}
	return page
}

// Run filters, sorts and paginates records. The input slice is not
// modified.
func Run(records []core.Tx, q Query) Page {
	filtered := q.Filter.Apply(records)
	Sort(filtered, q.Sort, q.Desc)

	page := ClampPage(q.Page, len(filtered))
	start := (page - 1) * PageSize
	end := start + PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return Page{
		Items:    filtered[start:end],
		Page:     page,
		Pages:    PageCount(len(filtered)),
		Total:    len(filtered),
		PageSize: PageSize,
	}
}
