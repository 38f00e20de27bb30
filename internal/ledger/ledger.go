// Package ledger implements transaction persistence and account-balance
// reconciliation. Every write keeps the invariant that an account's cached
// balance equals the sum of signed amounts of its transactions: the
// transaction row and the balance increment commit in one storage unit of
// work, or not at all.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/events"
	"github.com/dvloznov/wealth-tracker/internal/recurrence"
	"github.com/dvloznov/wealth-tracker/internal/storage"
)

// Ledger is the writer for accounts and transactions.
type Ledger struct {
	store     storage.LedgerStore
	publisher events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a Ledger. publisher may be nil when no notification fan-out is
// wanted (tests, one-shot tools).
func New(store storage.LedgerStore, publisher events.Publisher, log zerolog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// TransactionInput carries the caller-supplied fields for a create or update.
type TransactionInput struct {
	AccountID         uuid.UUID                `json:"account_id"`
	Type              domain.TransactionType   `json:"type"`
	Amount            decimal.Decimal          `json:"amount"`
	Description       string                   `json:"description"`
	Date              time.Time                `json:"date"`
	Category          string                   `json:"category"`
	ReceiptURL        string                   `json:"receipt_url"`
	IsRecurring       bool                     `json:"is_recurring"`
	RecurringInterval domain.RecurringInterval `json:"recurring_interval"`
}

func (in *TransactionInput) validate() error {
	if in.AccountID == uuid.Nil {
		return fmt.Errorf("%w: account_id is required", domain.ErrValidation)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", domain.ErrValidation, in.Type)
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be non-negative", domain.ErrValidation)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", domain.ErrValidation)
	}
	if in.IsRecurring {
		if !in.RecurringInterval.Valid() {
			return fmt.Errorf("%w: unrecognized recurring interval %q", domain.ErrValidation, in.RecurringInterval)
		}
	} else if in.RecurringInterval != "" {
		return fmt.Errorf("%w: recurring_interval set on a non-recurring transaction", domain.ErrValidation)
	}
	return nil
}

// Create validates ownership of the target account, derives the next
// recurrence date when applicable, and persists the transaction together
// with its balance effect in one atomic unit of work.
func (l *Ledger) Create(ctx context.Context, userID uuid.UUID, input TransactionInput) (*domain.Transaction, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	if _, err := l.store.GetAccount(ctx, userID, input.AccountID); err != nil {
		return nil, fmt.Errorf("Create: account %s: %w", input.AccountID, err)
	}

	now := l.now()
	tx := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		AccountID:   input.AccountID,
		Type:        input.Type,
		Amount:      input.Amount,
		Description: input.Description,
		Date:        input.Date,
		Category:    input.Category,
		ReceiptURL:  input.ReceiptURL,
		Status:      domain.StatusCompleted,
		IsRecurring: input.IsRecurring,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if input.IsRecurring {
		next, err := recurrence.NextOccurrence(input.Date, input.RecurringInterval)
		if err != nil {
			return nil, err
		}
		tx.RecurringInterval = input.RecurringInterval
		tx.NextRecurringDate = &next
	}

	if err := l.store.CreateTransaction(ctx, tx, tx.SignedAmount()); err != nil {
		return nil, fmt.Errorf("Create: persisting transaction: %w", err)
	}

	l.notify(tx, "create")
	return tx, nil
}

// Update recomputes the account's balance from the difference between the
// prior and the new signed amount, so type flips and amount edits net out
// correctly. Account reassignment is rejected: moving a transaction between
// accounts would require reconciling both balances and is not supported.
func (l *Ledger) Update(ctx context.Context, userID, txID uuid.UUID, input TransactionInput) (*domain.Transaction, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	original, err := l.store.GetTransaction(ctx, userID, txID)
	if err != nil {
		return nil, fmt.Errorf("Update: transaction %s: %w", txID, err)
	}
	if input.AccountID != original.AccountID {
		return nil, fmt.Errorf("%w: account reassignment is not supported", domain.ErrValidation)
	}

	oldChange := original.SignedAmount()
	newChange := domain.SignedAmount(input.Type, input.Amount)
	netChange := newChange.Sub(oldChange)

	updated := &domain.Transaction{
		ID:            original.ID,
		UserID:        original.UserID,
		AccountID:     original.AccountID,
		Type:          input.Type,
		Amount:        input.Amount,
		Description:   input.Description,
		Date:          input.Date,
		Category:      input.Category,
		ReceiptURL:    input.ReceiptURL,
		Status:        original.Status,
		IsRecurring:   input.IsRecurring,
		LastProcessed: original.LastProcessed,
		CreatedAt:     original.CreatedAt,
		UpdatedAt:     l.now(),
	}
	if input.IsRecurring {
		next, err := recurrence.NextOccurrence(input.Date, input.RecurringInterval)
		if err != nil {
			return nil, err
		}
		updated.RecurringInterval = input.RecurringInterval
		updated.NextRecurringDate = &next
	}

	if err := l.store.UpdateTransaction(ctx, updated, netChange); err != nil {
		return nil, fmt.Errorf("Update: persisting transaction: %w", err)
	}

	l.notify(updated, "update")
	return updated, nil
}

// Get returns a transaction owned by userID.
func (l *Ledger) Get(ctx context.Context, userID, txID uuid.UUID) (*domain.Transaction, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	tx, err := l.store.GetTransaction(ctx, userID, txID)
	if err != nil {
		return nil, fmt.Errorf("Get: transaction %s: %w", txID, err)
	}
	return tx, nil
}

// ListByAccount returns the account's transactions, newest first.
func (l *Ledger) ListByAccount(ctx context.Context, userID, accountID uuid.UUID) ([]*domain.Transaction, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	if _, err := l.store.GetAccount(ctx, userID, accountID); err != nil {
		return nil, fmt.Errorf("ListByAccount: account %s: %w", accountID, err)
	}
	return l.store.ListTransactionsByAccount(ctx, userID, accountID)
}

// AccountInput carries the caller-supplied fields for account creation.
type AccountInput struct {
	Name      string             `json:"name"`
	Type      domain.AccountType `json:"type"`
	IsDefault bool               `json:"is_default"`
}

// CreateAccount creates an account with a zero starting balance.
func (l *Ledger) CreateAccount(ctx context.Context, userID uuid.UUID, input AccountInput) (*domain.Account, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: account name is required", domain.ErrValidation)
	}
	if !input.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown account type %q", domain.ErrValidation, input.Type)
	}

	now := l.now()
	account := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(input.Name),
		Type:      input.Type,
		Balance:   decimal.Zero,
		IsDefault: input.IsDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.store.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}
	return account, nil
}

// ListAccounts returns the caller's accounts.
func (l *Ledger) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	if userID == uuid.Nil {
		return nil, domain.ErrUnauthorized
	}
	return l.store.ListAccounts(ctx, userID)
}

// ProcessRecurring materializes one occurrence of a due recurring
// transaction: it inserts the generated row, applies its balance effect, and
// advances the parent's schedule, all in one unit of work. Returns the
// generated occurrence.
func (l *Ledger) ProcessRecurring(ctx context.Context, parent *domain.Transaction) (*domain.Transaction, error) {
	if !parent.IsRecurring || parent.NextRecurringDate == nil {
		return nil, fmt.Errorf("%w: transaction %s is not due for recurring processing", domain.ErrValidation, parent.ID)
	}

	now := l.now()
	next, err := recurrence.NextOccurrence(now, parent.RecurringInterval)
	if err != nil {
		return nil, err
	}

	occurrence := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      parent.UserID,
		AccountID:   parent.AccountID,
		Type:        parent.Type,
		Amount:      parent.Amount,
		Description: parent.Description + " (Recurring)",
		Date:        now,
		Category:    parent.Category,
		Status:      domain.StatusCompleted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = l.store.ApplyRecurringOccurrence(ctx, occurrence, parent.ID, next, now, occurrence.SignedAmount())
	if err != nil {
		return nil, fmt.Errorf("ProcessRecurring: transaction %s: %w", parent.ID, err)
	}

	l.notify(occurrence, "recurring")
	return occurrence, nil
}

// notify publishes a refresh event. Publish failures never fail the write;
// the storage commit is the durability boundary.
func (l *Ledger) notify(tx *domain.Transaction, operation string) {
	if l.publisher == nil {
		return
	}
	event := events.TransactionWritten{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		UserID:        tx.UserID,
		Operation:     operation,
		Amount:        tx.Amount,
		RefreshPaths:  events.RefreshPathsFor(tx.AccountID),
		OccurredAt:    l.now(),
	}
	if err := l.publisher.Publish(events.TopicTransactions, event); err != nil {
		l.log.Warn().Err(err).
			Str("transaction_id", tx.ID.String()).
			Str("operation", operation).
			Msg("Failed to publish transaction event")
	}
}
