package ledger

import (
	"math"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Buckets assigns categories to the essentials and savings ceilings.
// Any other category counts as discretionary.
type Buckets struct {
	Essentials []string
	Savings    []string
}

// DefaultBuckets is used when no mapping is configured.
func DefaultBuckets() Buckets {
	return Buckets{
		Essentials: []string{"Housing", "Food", "Transport", "Health"},
		Savings:    []string{core.SavingsCategory},
	}
}

// Usage is spending against one ceiling.
type Usage struct {
	Limit   float64 `json:"limit"`
	Spent   float64 `json:"spent"`
	Left    float64 `json:"left"`
	Percent float64 `json:"percent"`
}

// BudgetReport is the monthly usage of every ceiling.
type BudgetReport struct {
	Month         string `json:"month"`
	Essentials    Usage  `json:"essentials"`
	Discretionary Usage  `json:"discretionary"`
	Savings       Usage  `json:"savings"`
}

// BudgetUsage compares the month's expenses with the budget ceilings.
func BudgetUsage(records []core.Tx, month string, budget core.Budget, buckets Buckets) BudgetReport {
	essentials := setOf(buckets.Essentials)
	savings := setOf(buckets.Savings)

	var ess, disc, sav decimal.Decimal
	for _, tx := range records {
		if tx.Type != core.Expense || tx.Month() != month {
			continue
		}
		abs := decimal.NewFromFloat(math.Abs(tx.Amount))
		switch {
		case essentials[tx.Category]:
			ess = ess.Add(abs)
		case savings[tx.Category]:
			sav = sav.Add(abs)
		default:
			disc = disc.Add(abs)
		}
	}
	return BudgetReport{
		Month:         month,
		Essentials:    usage(budget.Essentials, ess),
		Discretionary: usage(budget.Discretionary, disc),
		Savings:       usage(budget.Savings, sav),
	}
}

func usage(limit float64, spent decimal.Decimal) Usage {
	l := decimal.NewFromFloat(limit)
	u := Usage{
		Limit: limit,
		Spent: spent.InexactFloat64(),
		Left:  l.Sub(spent).InexactFloat64(),
	}
	if limit > 0 {
		u.Percent = spent.Div(l).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
	}
	return u
}

func setOf(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// GoalStatus is a goal with its completion percentage.
type GoalStatus struct {
	core.Goal
	Percent   float64 `json:"percent"`
	Remaining float64 `json:"remaining"`
}

// GoalProgress reports completion clamped to [0, 100].
func GoalProgress(g core.Goal) GoalStatus {
	st := GoalStatus{Goal: g}
	if g.TargetAmount <= 0 {
		return st
	}
	target := decimal.NewFromFloat(g.TargetAmount)
	current := decimal.NewFromFloat(g.CurrentAmount)
	pct := current.Div(target).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
	st.Percent = math.Max(0, math.Min(100, pct))
	st.Remaining = math.Max(0, target.Sub(current).InexactFloat64())
	return st
}
