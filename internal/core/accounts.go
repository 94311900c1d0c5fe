package core

import "strings"

// DefaultCreditCardAccount is the account kept out of income and cash
// balance totals unless configured otherwise.
const DefaultCreditCardAccount = "TC X"

// DefaultAccountNames is the built-in account set.
var DefaultAccountNames = []string{"Cash", "Checking", "Savings", DefaultCreditCardAccount}

// Accounts is the fixed, ordered set of account names a session can record
// against, with one designated credit-card account.
type Accounts struct {
	names      []string
	creditCard string
}

// NewAccounts builds an account set. Blank and duplicate names are dropped.
// The credit-card account is added to the set if missing.
func NewAccounts(names []string, creditCard string) Accounts {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(names)+1)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	creditCard = strings.TrimSpace(creditCard)
	if creditCard != "" {
		if _, ok := seen[creditCard]; !ok {
			out = append(out, creditCard)
		}
	}
	return Accounts{names: out, creditCard: creditCard}
}

// DefaultAccounts returns the built-in account set.
func DefaultAccounts() Accounts {
	return NewAccounts(DefaultAccountNames, DefaultCreditCardAccount)
}

func (a Accounts) Names() []string {
	return append([]string(nil), a.names...)
}

func (a Accounts) CreditCard() string {
	return a.creditCard
}

// IsCreditCard reports whether name is the designated credit-card account.
func (a Accounts) IsCreditCard(name string) bool {
	return a.creditCard != "" && name == a.creditCard
}

func (a Accounts) Contains(name string) bool {
	for _, n := range a.names {
		if n == name {
			return true
		}
	}
	return false
}

// Check validates that every account referenced by tx belongs to the set.
func (a Accounts) Check(tx Tx) error {
	if !a.Contains(tx.Account) {
		return ErrUnknownAccount
	}
	if tx.ToAccount != "" && !a.Contains(tx.ToAccount) {
		return ErrUnknownAccount
	}
	return nil
}
