// Package ledger derives summaries and table views from a record list. Every
// function is a pure recomputation over its inputs.
package ledger

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const (
	// DefaultSeriesMonths is the trailing window used by TimeSeries.
	DefaultSeriesMonths = 6
	// PlaceholderKey labels the zero entry returned for an empty breakdown.
	PlaceholderKey = "No data"
	// AllAccounts disables the account filter.
	AllAccounts = "all"
)

// GroupBy selects the breakdown dimension.
type GroupBy string

const (
	ByCategory    GroupBy = "category"
	BySubcategory GroupBy = "subcategory"
	ByAccount     GroupBy = "account"
)

// Valid reports whether g is a known grouping dimension.
func (g GroupBy) Valid() bool {
	switch g {
	case ByCategory, BySubcategory, ByAccount:
		return true
	}
	return false
}

// Totals are the per-month KPIs.
type Totals struct {
	Month   string  `json:"month"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Savings float64 `json:"savings"`
	Net     float64 `json:"net"`
}

// MonthlyTotals sums income, expense and the savings net for month.
// Income on the credit-card account is not counted.
func MonthlyTotals(records []core.Tx, month string, accounts core.Accounts) Totals {
	var income, expense, savings decimal.Decimal
	for _, tx := range records {
		if tx.Month() != month {
			continue
		}
		abs := decimal.NewFromFloat(math.Abs(tx.Amount))
		switch tx.Type {
		case core.Income:
			if !accounts.IsCreditCard(tx.Account) {
				income = income.Add(decimal.NewFromFloat(tx.Amount))
			}
			if tx.Category == core.SavingsCategory {
				savings = savings.Add(abs)
			}
		case core.Expense:
			expense = expense.Add(abs)
			if tx.Category == core.SavingsCategory {
				savings = savings.Sub(abs)
			}
		}
	}
	return Totals{
		Month:   month,
		Income:  income.InexactFloat64(),
		Expense: expense.InexactFloat64(),
		Savings: savings.InexactFloat64(),
		Net:     income.Sub(expense).InexactFloat64(),
	}
}

// Balances sums every amount ever recorded per account.
func Balances(records []core.Tx) map[string]float64 {
	sums := map[string]decimal.Decimal{}
	for _, tx := range records {
		sums[tx.Account] = sums[tx.Account].Add(decimal.NewFromFloat(tx.Amount))
	}
	out := make(map[string]float64, len(sums))
	for k, v := range sums {
		out[k] = v.InexactFloat64()
	}
	return out
}

// OverallBalance sums the account balances, leaving out the credit-card
// account.
func OverallBalance(balances map[string]float64, accounts core.Accounts) float64 {
	total := decimal.Zero
	for account, v := range balances {
		if accounts.IsCreditCard(account) {
			continue
		}
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.InexactFloat64()
}

// SeriesPoint is one month of the income/expense time series.
type SeriesPoint struct {
	Month   string  `json:"month"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
}

// TimeSeries returns income and expense totals for the last n months that
// have at least one income or expense record, oldest first.
func TimeSeries(records []core.Tx, accounts core.Accounts, n int) []SeriesPoint {
	if n <= 0 {
		n = DefaultSeriesMonths
	}
	months := map[string]struct{}{}
	for _, tx := range records {
		if tx.Type == core.Income || tx.Type == core.Expense {
			if m := tx.Month(); m != "" {
				months[m] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Strings(keys)
	if len(keys) > n {
		keys = keys[len(keys)-n:]
	}

	out := make([]SeriesPoint, 0, len(keys))
	for _, m := range keys {
		t := MonthlyTotals(records, m, accounts)
		out = append(out, SeriesPoint{Month: m, Income: t.Income, Expense: t.Expense})
	}
	return out
}

// BreakdownQuery filters and groups expenses for a chart.
type BreakdownQuery struct {
	From     string // inclusive YYYY-MM-DD, empty for open
	To       string // inclusive YYYY-MM-DD, empty for open
	Account  string // AllAccounts, empty or one account name
	GroupBy  GroupBy
	Category string // drill-down target for BySubcategory
}

// Group is one slice of a breakdown.
type Group struct {
	Key   string  `json:"key"`
	Total float64 `json:"total"`
}

// BreakdownResult carries the groups and, for subcategory grouping, the
// category that was drilled into.
type BreakdownResult struct {
	GroupBy  GroupBy `json:"groupBy"`
	Category string  `json:"category,omitempty"`
	Groups   []Group `json:"groups"`
}

// Breakdown sums absolute expense amounts per group key, largest first.
// With subcategory grouping and no category selected, the category with the
// largest expense total is used. The result always holds at least one group.
func Breakdown(records []core.Tx, q BreakdownQuery) BreakdownResult {
	if !q.GroupBy.Valid() {
		q.GroupBy = ByCategory
	}
	expenses := make([]core.Tx, 0, len(records))
	for _, tx := range records {
		if tx.Type != core.Expense || !inRange(tx.Date, q.From, q.To) {
			continue
		}
		if q.Account != "" && q.Account != AllAccounts && tx.Account != q.Account {
			continue
		}
		expenses = append(expenses, tx)
	}

	res := BreakdownResult{GroupBy: q.GroupBy}
	var key func(core.Tx) string
	switch q.GroupBy {
	case ByAccount:
		key = func(tx core.Tx) string { return tx.Account }
	case BySubcategory:
		res.Category = q.Category
		if res.Category == "" {
			if top := sumBy(expenses, func(tx core.Tx) string { return tx.Category }); len(top) > 0 {
				res.Category = top[0].Key
			}
		}
		filtered := expenses[:0:0]
		for _, tx := range expenses {
			if tx.Category == res.Category {
				filtered = append(filtered, tx)
			}
		}
		expenses = filtered
		key = func(tx core.Tx) string { return tx.Subcategory }
	default:
		key = func(tx core.Tx) string { return tx.Category }
	}

	res.Groups = sumBy(expenses, key)
	if len(res.Groups) == 0 {
		res.Groups = []Group{{Key: PlaceholderKey, Total: 0}}
	}
	return res
}

func sumBy(records []core.Tx, key func(core.Tx) string) []Group {
	sums := map[string]decimal.Decimal{}
	for _, tx := range records {
		k := key(tx)
		sums[k] = sums[k].Add(decimal.NewFromFloat(math.Abs(tx.Amount)))
	}
	out := make([]Group, 0, len(sums))
	for k, v := range sums {
		out = append(out, Group{Key: k, Total: v.InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func inRange(date, from, to string) bool {
	if from != "" && date < from {
		return false
	}
	if to != "" && date > to {
		return false
	}
	return true
}
