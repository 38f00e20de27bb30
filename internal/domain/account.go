package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType distinguishes the kinds of accounts a user can hold.
type AccountType string

const (
	AccountCurrent AccountType = "CURRENT"
	AccountSavings AccountType = "SAVINGS"
)

// Valid reports whether a is a known account type.
func (a AccountType) Valid() bool {
	return a == AccountCurrent || a == AccountSavings
}

// Account holds a user's cached balance. The balance invariant: at all times
// it equals the sum of signed amounts of all transactions referencing the
// account. It is mutated only through the ledger's atomic increment, never
// written directly by callers.
type Account struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Name      string          `json:"name"`
	Type      AccountType     `json:"type"`
	Balance   decimal.Decimal `json:"balance"`
	IsDefault bool            `json:"is_default"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
