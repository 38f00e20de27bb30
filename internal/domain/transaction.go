package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies how a transaction affects the owning account's balance.
type TransactionType string

const (
	TypeExpense TransactionType = "EXPENSE"
	TypeIncome  TransactionType = "INCOME"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TypeExpense || t == TypeIncome
}

// RecurringInterval is the repeat cadence of a recurring transaction.
type RecurringInterval string

const (
	IntervalDaily   RecurringInterval = "DAILY"
	IntervalWeekly  RecurringInterval = "WEEKLY"
	IntervalMonthly RecurringInterval = "MONTHLY"
	IntervalYearly  RecurringInterval = "YEARLY"
)

// Valid reports whether i is a known recurring interval.
func (i RecurringInterval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	}
	return false
}

// TransactionStatus tracks the lifecycle of a transaction row.
type TransactionStatus string

const (
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusPending   TransactionStatus = "PENDING"
)

// Transaction represents one ledger entry against an account.
// Amount is a non-negative magnitude; the sign is derived from Type.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	AccountID   uuid.UUID         `json:"account_id"`
	Type        TransactionType   `json:"type"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Date        time.Time         `json:"date"`
	Category    string            `json:"category"`
	ReceiptURL  string            `json:"receipt_url,omitempty"`
	Status      TransactionStatus `json:"status"`

	IsRecurring       bool              `json:"is_recurring"`
	RecurringInterval RecurringInterval `json:"recurring_interval,omitempty"`
	NextRecurringDate *time.Time        `json:"next_recurring_date,omitempty"`
	LastProcessed     *time.Time        `json:"last_processed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignedAmount returns the balance effect of the transaction:
// negative for expenses, positive for everything else.
func (t *Transaction) SignedAmount() decimal.Decimal {
	return SignedAmount(t.Type, t.Amount)
}

// SignedAmount computes the balance effect of an amount of the given type.
func SignedAmount(typ TransactionType, amount decimal.Decimal) decimal.Decimal {
	if typ == TypeExpense {
		return amount.Neg()
	}
	return amount
}
