package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/events"
	eventsmem "github.com/dvloznov/wealth-tracker/internal/events/memory"
	"github.com/dvloznov/wealth-tracker/internal/storage/memory"
)

func newTestLedger(t *testing.T) (*Ledger, *memory.Store, *eventsmem.Publisher) {
	t.Helper()
	store := memory.NewStore()
	publisher := eventsmem.NewPublisher()
	return New(store, publisher, zerolog.Nop()), store, publisher
}

func seedAccount(t *testing.T, store *memory.Store, userID uuid.UUID, balance string) *domain.Account {
	t.Helper()
	account := &domain.Account{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      "Main",
		Type:      domain.AccountCurrent,
		Balance:   decimal.RequireFromString(balance),
		IsDefault: true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("seeding account: %v", err)
	}
	return account
}

func expenseInput(accountID uuid.UUID, amount string) TransactionInput {
	return TransactionInput{
		AccountID:   accountID,
		Type:        domain.TypeExpense,
		Amount:      decimal.RequireFromString(amount),
		Description: "test expense",
		Date:        time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC),
		Category:    "groceries",
	}
}

func TestCreate_BalanceEffect(t *testing.T) {
	tests := []struct {
		name        string
		txType      domain.TransactionType
		amount      string
		wantBalance string
	}{
		{name: "expense decrements", txType: domain.TypeExpense, amount: "50.00", wantBalance: "50.00"},
		{name: "income increments", txType: domain.TypeIncome, amount: "50.00", wantBalance: "150.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, store, _ := newTestLedger(t)
			userID := uuid.New()
			account := seedAccount(t, store, userID, "100.00")

			input := expenseInput(account.ID, tt.amount)
			input.Type = tt.txType

			tx, err := l.Create(context.Background(), userID, input)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if tx.ID == uuid.Nil {
				t.Error("expected a generated transaction ID")
			}

			got, err := store.GetAccount(context.Background(), userID, account.ID)
			if err != nil {
				t.Fatalf("GetAccount() error = %v", err)
			}
			if !got.Balance.Equal(decimal.RequireFromString(tt.wantBalance)) {
				t.Errorf("balance = %s, want %s", got.Balance, tt.wantBalance)
			}
		})
	}
}

func TestCreate_AccountNotFound(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	seedAccount(t, store, userID, "100.00")

	_, err := l.Create(context.Background(), userID, expenseInput(uuid.New(), "50.00"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreate_AccountOwnedBySomeoneElse(t *testing.T) {
	l, store, _ := newTestLedger(t)
	owner := uuid.New()
	account := seedAccount(t, store, owner, "100.00")

	_, err := l.Create(context.Background(), uuid.New(), expenseInput(account.ID, "50.00"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign account, got %v", err)
	}

	got, err := store.GetAccount(context.Background(), owner, account.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("balance changed on failed create: %s", got.Balance)
	}
}

func TestCreate_Validation(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	tests := []struct {
		name   string
		mutate func(*TransactionInput)
	}{
		{"negative amount", func(in *TransactionInput) { in.Amount = decimal.RequireFromString("-1") }},
		{"unknown type", func(in *TransactionInput) { in.Type = "TRANSFER" }},
		{"missing date", func(in *TransactionInput) { in.Date = time.Time{} }},
		{"recurring without interval", func(in *TransactionInput) { in.IsRecurring = true }},
		{"recurring with bad interval", func(in *TransactionInput) {
			in.IsRecurring = true
			in.RecurringInterval = "FORTNIGHTLY"
		}},
		{"interval without recurring", func(in *TransactionInput) { in.RecurringInterval = domain.IntervalDaily }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := expenseInput(account.ID, "10.00")
			tt.mutate(&input)

			_, err := l.Create(context.Background(), userID, input)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreate_RecurringSetsNextDate(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	input := expenseInput(account.ID, "10.00")
	input.Date = time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	input.IsRecurring = true
	input.RecurringInterval = domain.IntervalMonthly

	tx, err := l.Create(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tx.NextRecurringDate == nil {
		t.Fatal("expected next_recurring_date to be set")
	}
	want := time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)
	if !tx.NextRecurringDate.Equal(want) {
		t.Errorf("next_recurring_date = %v, want %v (leap-year clamp)", tx.NextRecurringDate, want)
	}
}

func TestCreate_NonRecurringHasNilNextDate(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	tx, err := l.Create(context.Background(), userID, expenseInput(account.ID, "10.00"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if tx.NextRecurringDate != nil {
		t.Errorf("next_recurring_date = %v, want nil", tx.NextRecurringDate)
	}
}

func TestUpdate_TypeFlipNetsBothChanges(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	tx, err := l.Create(context.Background(), userID, expenseInput(account.ID, "50.00"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	// balance now 50.00

	input := expenseInput(account.ID, "50.00")
	input.Type = domain.TypeIncome
	if _, err := l.Update(context.Background(), userID, tx.ID, input); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// EXPENSE 50 -> INCOME 50 must net +100, not +50 or 0.
	got, err := store.GetAccount(context.Background(), userID, account.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("150.00")) {
		t.Errorf("balance = %s, want 150.00", got.Balance)
	}
}

func TestUpdate_AmountEdit(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	tx, err := l.Create(context.Background(), userID, expenseInput(account.ID, "30.00"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	input := expenseInput(account.ID, "10.00")
	if _, err := l.Update(context.Background(), userID, tx.ID, input); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, _ := store.GetAccount(context.Background(), userID, account.ID)
	if !got.Balance.Equal(decimal.RequireFromString("90.00")) {
		t.Errorf("balance = %s, want 90.00", got.Balance)
	}
}

func TestUpdate_AccountReassignmentRejected(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	first := seedAccount(t, store, userID, "100.00")
	second := seedAccount(t, store, userID, "100.00")

	tx, err := l.Create(context.Background(), userID, expenseInput(first.ID, "20.00"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	input := expenseInput(second.ID, "20.00")
	_, err = l.Update(context.Background(), userID, tx.ID, input)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation for account reassignment, got %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	_, err := l.Update(context.Background(), userID, uuid.New(), expenseInput(account.ID, "20.00"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_OwnerScoped(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	tx, err := l.Create(context.Background(), userID, expenseInput(account.ID, "20.00"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := l.Get(context.Background(), userID, tx.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != tx.ID {
		t.Errorf("Get() returned transaction %s, want %s", got.ID, tx.ID)
	}

	if _, err := l.Get(context.Background(), uuid.New(), tx.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign caller, got %v", err)
	}
}

func TestNoIdentityFailsClosed(t *testing.T) {
	l, store, _ := newTestLedger(t)
	account := seedAccount(t, store, uuid.New(), "100.00")

	if _, err := l.Create(context.Background(), uuid.Nil, expenseInput(account.ID, "10.00")); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Create without identity: expected ErrUnauthorized, got %v", err)
	}
	if _, err := l.Get(context.Background(), uuid.Nil, uuid.New()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("Get without identity: expected ErrUnauthorized, got %v", err)
	}
}

func TestConcurrentCreates_NoLostUpdate(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Create(context.Background(), userID, expenseInput(account.ID, "10.00"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Create() error = %v", err)
		}
	}

	got, err := store.GetAccount(context.Background(), userID, account.ID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if !got.Balance.Equal(decimal.RequireFromString("80.00")) {
		t.Errorf("balance = %s, want 80.00 (lost update)", got.Balance)
	}
}

func TestBalanceInvariant_AcrossSequence(t *testing.T) {
	l, store, _ := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "0.00")

	ops := []struct {
		txType domain.TransactionType
		amount string
	}{
		{domain.TypeIncome, "200.00"},
		{domain.TypeExpense, "35.50"},
		{domain.TypeExpense, "14.50"},
		{domain.TypeIncome, "0.01"},
	}

	for _, op := range ops {
		input := expenseInput(account.ID, op.amount)
		input.Type = op.txType
		if _, err := l.Create(context.Background(), userID, input); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		// Invariant holds at every observable point.
		txs, err := store.ListTransactionsByAccount(context.Background(), userID, account.ID)
		if err != nil {
			t.Fatalf("ListTransactionsByAccount() error = %v", err)
		}
		sum := decimal.Zero
		for _, tx := range txs {
			sum = sum.Add(tx.SignedAmount())
		}
		acct, _ := store.GetAccount(context.Background(), userID, account.ID)
		if !acct.Balance.Equal(sum) {
			t.Fatalf("balance %s != sum of signed amounts %s", acct.Balance, sum)
		}
	}
}

func TestProcessRecurring(t *testing.T) {
	l, store, publisher := newTestLedger(t)
	userID := uuid.New()
	account := seedAccount(t, store, userID, "100.00")

	input := expenseInput(account.ID, "25.00")
	input.Date = time.Now().AddDate(0, -1, 0)
	input.IsRecurring = true
	input.RecurringInterval = domain.IntervalMonthly

	parent, err := l.Create(context.Background(), userID, input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	occurrence, err := l.ProcessRecurring(context.Background(), parent)
	if err != nil {
		t.Fatalf("ProcessRecurring() error = %v", err)
	}
	if occurrence.IsRecurring {
		t.Error("generated occurrence must not itself be recurring")
	}
	if !occurrence.Amount.Equal(parent.Amount) {
		t.Errorf("occurrence amount = %s, want %s", occurrence.Amount, parent.Amount)
	}

	// Parent schedule advanced.
	reloaded, err := store.GetTransaction(context.Background(), userID, parent.ID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if reloaded.LastProcessed == nil {
		t.Error("expected last_processed to be set on the parent")
	}
	if reloaded.NextRecurringDate == nil || !reloaded.NextRecurringDate.After(*parent.NextRecurringDate) {
		t.Errorf("next_recurring_date not advanced: %v", reloaded.NextRecurringDate)
	}

	// Balance reflects both the original create and the occurrence.
	acct, _ := store.GetAccount(context.Background(), userID, account.ID)
	if !acct.Balance.Equal(decimal.RequireFromString("50.00")) {
		t.Errorf("balance = %s, want 50.00", acct.Balance)
	}

	// Events carry refresh paths for each of the three writes.
	published := publisher.Events()
	if len(published) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(published))
	}
	last, ok := published[1].Event.(events.TransactionWritten)
	if !ok {
		t.Fatalf("unexpected event type %T", published[1].Event)
	}
	if last.Operation != "recurring" {
		t.Errorf("operation = %q, want recurring", last.Operation)
	}
	wantPath := "/account/" + account.ID.String()
	found := false
	for _, p := range last.RefreshPaths {
		if p == wantPath {
			found = true
		}
	}
	if !found {
		t.Errorf("refresh paths %v missing %q", last.RefreshPaths, wantPath)
	}
}
