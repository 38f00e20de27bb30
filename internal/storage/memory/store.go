// Package memory provides an in-memory Store implementation. It is safe for
// concurrent use and suitable for tests and single-process local runs; data
// is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/storage"
)

// Store keeps all records in maps guarded by a single mutex. Holding the
// mutex across every multi-write method is what makes each one a unit of
// work: concurrent balance increments serialize and no partial state is
// observable.
type Store struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*domain.Account
	transactions map[uuid.UUID]*domain.Transaction
	users        map[uuid.UUID]*domain.User
	budgets      map[uuid.UUID]*domain.Budget
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]*domain.Account),
		transactions: make(map[uuid.UUID]*domain.Transaction),
		users:        make(map[uuid.UUID]*domain.User),
		budgets:      make(map[uuid.UUID]*domain.Budget),
	}
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getAccountLocked(userID, accountID)
}

func (s *Store) getAccountLocked(userID, accountID uuid.UUID) (*domain.Account, error) {
	account, ok := s.accounts[accountID]
	if !ok || account.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Account
	for _, account := range s.accounts {
		if account.UserID == userID {
			cp := *account
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction, balanceDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[tx.AccountID]
	if !ok || account.UserID != tx.UserID {
		return domain.ErrNotFound
	}

	cp := *tx
	s.transactions[tx.ID] = &cp
	account.Balance = account.Balance.Add(balanceDelta)
	account.UpdatedAt = time.Now()
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.Transaction, balanceDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.transactions[tx.ID]
	if !ok || prev.UserID != tx.UserID {
		return domain.ErrNotFound
	}
	account, ok := s.accounts[tx.AccountID]
	if !ok || account.UserID != tx.UserID {
		return domain.ErrNotFound
	}

	cp := *tx
	s.transactions[tx.ID] = &cp
	account.Balance = account.Balance.Add(balanceDelta)
	account.UpdatedAt = time.Now()
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txID]
	if !ok || tx.UserID != userID {
		return nil, domain.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, userID, accountID uuid.UUID) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID && tx.AccountID == accountID {
			cp := *tx
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.After(result[j].Date)
	})
	return result, nil
}

func (s *Store) ListDueRecurring(ctx context.Context, asOf time.Time, limit int) ([]*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*domain.Transaction
	for _, tx := range s.transactions {
		if !tx.IsRecurring || tx.NextRecurringDate == nil {
			continue
		}
		if tx.NextRecurringDate.After(asOf) {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].NextRecurringDate.Before(*result[j].NextRecurringDate)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ApplyRecurringOccurrence(ctx context.Context, occurrence *domain.Transaction, parentID uuid.UUID, nextDate, processedAt time.Time, balanceDelta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.transactions[parentID]
	if !ok {
		return domain.ErrNotFound
	}
	account, ok := s.accounts[occurrence.AccountID]
	if !ok || account.UserID != occurrence.UserID {
		return domain.ErrNotFound
	}

	cp := *occurrence
	s.transactions[occurrence.ID] = &cp
	account.Balance = account.Balance.Add(balanceDelta)
	account.UpdatedAt = processedAt

	next := nextDate
	processed := processedAt
	parent.NextRecurringDate = &next
	parent.LastProcessed = &processed
	parent.UpdatedAt = processedAt
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return domain.ErrConflict
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) UpsertBudget(ctx context.Context, budget *domain.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.budgets {
		if existing.UserID == budget.UserID {
			existing.Amount = budget.Amount
			existing.UpdatedAt = budget.UpdatedAt
			return nil
		}
	}
	cp := *budget
	s.budgets[budget.ID] = &cp
	return nil
}

func (s *Store) GetBudget(ctx context.Context, userID uuid.UUID) (*domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, budget := range s.budgets {
		if budget.UserID == userID {
			cp := *budget
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListBudgets(ctx context.Context) ([]*domain.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*domain.Budget, 0, len(s.budgets))
	for _, budget := range s.budgets {
		cp := *budget
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) MonthlyExpenses(ctx context.Context, userID, accountID uuid.UUID, monthStart time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, monthStart.Location())
	end := start.AddDate(0, 1, 0)

	total := decimal.Zero
	for _, tx := range s.transactions {
		if tx.UserID != userID || tx.AccountID != accountID || tx.Type != domain.TypeExpense {
			continue
		}
		if tx.Date.Before(start) || !tx.Date.Before(end) {
			continue
		}
		total = total.Add(tx.Amount)
	}
	return total, nil
}

func (s *Store) MarkAlertSent(ctx context.Context, budgetID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	budget, ok := s.budgets[budgetID]
	if !ok {
		return domain.ErrNotFound
	}
	sent := at
	budget.LastAlertSent = &sent
	budget.UpdatedAt = at
	return nil
}

// Ensure Store implements the full persistence surface.
var _ storage.Store = (*Store)(nil)
