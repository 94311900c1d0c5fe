package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

const (
	Income   TxType = "Income"
	Expense  TxType = "Expense"
	Transfer TxType = "Transfer"
)

const (
	DateLayout  = "2006-01-02"
	TimeLayout  = "15:04:05"
	MonthLayout = "2006-01"

	// SavingsCategory is the category tracked by the monthly savings net.
	SavingsCategory = "Savings"
	// TransferCategory is used for transfer legs when no category is given.
	TransferCategory = "Transfer"
)

type (
	TxType string

	// Tx is one ledger entry. Amount is positive for inflow and negative
	// for outflow.
	Tx struct {
		ID          string  `json:"id" yaml:"id"`
		Type        TxType  `json:"type" yaml:"type"`
		Account     string  `json:"account" yaml:"account"`
		ToAccount   string  `json:"toAccount,omitempty" yaml:"toAccount,omitempty"`
		Date        string  `json:"date" yaml:"date"`
		Time        string  `json:"time" yaml:"time"`
		Amount      float64 `json:"amount" yaml:"amount"`
		Category    string  `json:"category" yaml:"category"`
		Subcategory string  `json:"subcategory" yaml:"subcategory"`
		Note        string  `json:"note,omitempty" yaml:"note,omitempty"`
		TransferID  string  `json:"transferId,omitempty" yaml:"transferId,omitempty"`
	}

	// Budget holds the ceilings for the current reporting period.
	Budget struct {
		Essentials    float64 `json:"essentials" yaml:"essentials"`
		Discretionary float64 `json:"discretionary" yaml:"discretionary"`
		Savings       float64 `json:"savings" yaml:"savings"`
	}

	// Goal is a named savings target.
	Goal struct {
		ID            string  `json:"id" yaml:"id"`
		Name          string  `json:"name" yaml:"name"`
		TargetAmount  float64 `json:"target_amount" yaml:"target_amount"`
		CurrentAmount float64 `json:"current_amount" yaml:"current_amount"`
		TargetDate    string  `json:"target_date,omitempty" yaml:"target_date,omitempty"`
	}
)

var (
	ErrInvalidType      = errors.New("invalid record type")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidTime      = errors.New("invalid time")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrEmptyID          = errors.New("empty id")
	ErrEmptyAccount     = errors.New("empty account")
	ErrUnknownAccount   = errors.New("unknown account")
	ErrEmptyCategory    = errors.New("empty category")
	ErrEmptyToAccount   = errors.New("transfer without destination account")
	ErrSameAccount      = errors.New("source and destination account are the same")
	ErrEmptyName        = errors.New("empty name")
	ErrNegativeBudget   = errors.New("budget ceilings cannot be negative")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrDuplicateTag     = errors.New("tag already exists")
	ErrNoteTooLong      = errors.New("note too long (max 500 characters)")
	ErrGoalTargetAmount = errors.New("goal target amount must be positive")
)

func (t TxType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	default:
		return false
	}
}

// ParseTxType accepts the canonical names case-insensitively.
func ParseTxType(s string) (TxType, error) {
	for _, t := range []TxType{Income, Expense, Transfer} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", ErrInvalidType
}

// SignedAmount applies the ledger sign convention for a newly entered
// amount: expenses are outflows, income is an inflow.
func SignedAmount(t TxType, v float64) float64 {
	switch t {
	case Expense:
		return -math.Abs(v)
	case Income:
		return math.Abs(v)
	default:
		return v
	}
}

// Key is the chronological sort key: date concatenated with time.
func (tx Tx) Key() string {
	return tx.Date + tx.Time
}

// Month returns the YYYY-MM prefix of the record date.
func (tx Tx) Month() string {
	if len(tx.Date) < 7 {
		return ""
	}
	return tx.Date[:7]
}

func (tx Tx) Validate() error {
	if strings.TrimSpace(tx.ID) == "" {
		return ErrEmptyID
	}
	if !tx.Type.Valid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(tx.Account) == "" {
		return ErrEmptyAccount
	}
	if err := ValidateDate(tx.Date); err != nil {
		return err
	}
	if _, err := time.Parse(TimeLayout, tx.Time); err != nil {
		return ErrInvalidTime
	}
	if tx.Amount == 0 || math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) {
		return ErrInvalidAmount
	}
	if len(tx.Note) > 500 {
		return ErrNoteTooLong
	}
	switch tx.Type {
	case Transfer:
		if strings.TrimSpace(tx.ToAccount) == "" {
			return ErrEmptyToAccount
		}
		if tx.ToAccount == tx.Account {
			return ErrSameAccount
		}
	default:
		if strings.TrimSpace(tx.Category) == "" {
			return ErrEmptyCategory
		}
	}
	return nil
}

// ValidateDate checks a YYYY-MM-DD calendar date.
func ValidateDate(s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// ValidateMonth checks a YYYY-MM reporting month.
func ValidateMonth(s string) error {
	if _, err := time.Parse(MonthLayout, s); err != nil {
		return ErrInvalidMonth
	}
	return nil
}

// CurrentMonth returns the reporting month containing t.
func CurrentMonth(t time.Time) string {
	return t.Format(MonthLayout)
}

func (b Budget) Validate() error {
	if b.Essentials < 0 || b.Discretionary < 0 || b.Savings < 0 {
		return ErrNegativeBudget
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.TargetAmount <= 0 || math.IsNaN(g.TargetAmount) || math.IsInf(g.TargetAmount, 0) {
		return ErrGoalTargetAmount
	}
	if g.TargetDate != "" {
		if err := ValidateDate(g.TargetDate); err != nil {
			return err
		}
	}
	return nil
}

// Contribute returns the goal with amount added to the accumulated total.
func (g Goal) Contribute(amount float64) (Goal, error) {
	if amount == 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return g, ErrInvalidAmount
	}
	g.CurrentAmount = RoundCents(g.CurrentAmount + amount)
	return g, nil
}
