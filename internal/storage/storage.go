// Package storage defines the persistence contracts for the ledger.
// Implementations must provide an atomic multi-write unit of work: a
// transaction write and its account-balance increment either both commit or
// both roll back, and the increment itself is atomic (never read-then-add).
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/domain"
)

// LedgerStore persists accounts and transactions.
type LedgerStore interface {
	CreateAccount(ctx context.Context, account *domain.Account) error
	// GetAccount returns the account only if it is owned by userID;
	// otherwise domain.ErrNotFound.
	GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error)

	// CreateTransaction inserts the transaction and applies balanceDelta to
	// the owning account's balance in one unit of work.
	CreateTransaction(ctx context.Context, tx *domain.Transaction, balanceDelta decimal.Decimal) error
	// UpdateTransaction overwrites the stored row and applies balanceDelta
	// (the net adjustment) to the account in one unit of work.
	UpdateTransaction(ctx context.Context, tx *domain.Transaction, balanceDelta decimal.Decimal) error
	GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*domain.Transaction, error)
	ListTransactionsByAccount(ctx context.Context, userID, accountID uuid.UUID) ([]*domain.Transaction, error)

	// ListDueRecurring returns recurring transactions whose next occurrence
	// is at or before asOf.
	ListDueRecurring(ctx context.Context, asOf time.Time, limit int) ([]*domain.Transaction, error)
	// ApplyRecurringOccurrence inserts the generated occurrence, applies its
	// balance effect, and advances the parent transaction's schedule, all in
	// one unit of work.
	ApplyRecurringOccurrence(ctx context.Context, occurrence *domain.Transaction, parentID uuid.UUID, nextDate, processedAt time.Time, balanceDelta decimal.Decimal) error
}

// UserStore persists user identities.
type UserStore interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}

// BudgetStore persists budgets and answers the queries the alert worker needs.
type BudgetStore interface {
	UpsertBudget(ctx context.Context, budget *domain.Budget) error
	GetBudget(ctx context.Context, userID uuid.UUID) (*domain.Budget, error)
	ListBudgets(ctx context.Context) ([]*domain.Budget, error)
	// MonthlyExpenses sums EXPENSE amounts for the account within the
	// calendar month containing monthStart.
	MonthlyExpenses(ctx context.Context, userID, accountID uuid.UUID, monthStart time.Time) (decimal.Decimal, error)
	MarkAlertSent(ctx context.Context, budgetID uuid.UUID, at time.Time) error
}

// Store is the full persistence surface backing the service.
type Store interface {
	LedgerStore
	UserStore
	BudgetStore
}
