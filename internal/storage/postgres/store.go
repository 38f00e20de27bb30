// Package postgres implements storage.Store on PostgreSQL. Every multi-write
// operation runs inside a single database transaction, and balance changes
// are expressed as atomic SQL increments so concurrent writers against the
// same account cannot lose updates.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/storage"
)

const uniqueViolation = "23505"

// Store wraps a *sql.DB opened with the postgres driver.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on top of an existing connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres.Open: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for the migration runner.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	const query = `
		INSERT INTO accounts (id, user_id, name, type, balance, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, account.UserID, account.Name, account.Type,
		account.Balance, account.IsDefault, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, userID, accountID uuid.UUID) (*domain.Account, error) {
	const query = `
		SELECT id, user_id, name, type, balance, is_default, created_at, updated_at
		FROM accounts
		WHERE id = $1 AND user_id = $2`

	account, err := scanAccount(s.db.QueryRowContext(ctx, query, accountID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return account, nil
}

func (s *Store) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	const query = `
		SELECT id, user_id, name, type, balance, is_default, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("ListAccounts: %w", err)
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction, balanceDelta decimal.Decimal) error {
	return s.withTx(ctx, "CreateTransaction", func(dbTx *sql.Tx) error {
		if err := insertTransaction(ctx, dbTx, tx); err != nil {
			return err
		}
		return incrementBalance(ctx, dbTx, tx.AccountID, tx.UserID, balanceDelta)
	})
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.Transaction, balanceDelta decimal.Decimal) error {
	const query = `
		UPDATE transactions
		SET type = $1, amount = $2, description = $3, date = $4, category = $5,
		    receipt_url = $6, status = $7, is_recurring = $8, recurring_interval = $9,
		    next_recurring_date = $10, updated_at = $11
		WHERE id = $12 AND user_id = $13`

	return s.withTx(ctx, "UpdateTransaction", func(dbTx *sql.Tx) error {
		res, err := dbTx.ExecContext(ctx, query,
			tx.Type, tx.Amount, tx.Description, tx.Date, tx.Category,
			tx.ReceiptURL, tx.Status, tx.IsRecurring, nullInterval(tx.RecurringInterval),
			nullTime(tx.NextRecurringDate), tx.UpdatedAt,
			tx.ID, tx.UserID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		return incrementBalance(ctx, dbTx, tx.AccountID, tx.UserID, balanceDelta)
	})
}

func (s *Store) GetTransaction(ctx context.Context, userID, txID uuid.UUID) (*domain.Transaction, error) {
	const query = transactionColumns + ` WHERE id = $1 AND user_id = $2`

	tx, err := scanTransaction(s.db.QueryRowContext(ctx, query, txID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return tx, nil
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, userID, accountID uuid.UUID) ([]*domain.Transaction, error) {
	const query = transactionColumns + `
		WHERE user_id = $1 AND account_id = $2
		ORDER BY date DESC`

	rows, err := s.db.QueryContext(ctx, query, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsByAccount: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListTransactionsByAccount: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) ListDueRecurring(ctx context.Context, asOf time.Time, limit int) ([]*domain.Transaction, error) {
	query := transactionColumns + `
		WHERE is_recurring AND next_recurring_date IS NOT NULL AND next_recurring_date <= $1
		ORDER BY next_recurring_date`
	args := []any{asOf}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListDueRecurring: %w", err)
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDueRecurring: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *Store) ApplyRecurringOccurrence(ctx context.Context, occurrence *domain.Transaction, parentID uuid.UUID, nextDate, processedAt time.Time, balanceDelta decimal.Decimal) error {
	const advance = `
		UPDATE transactions
		SET next_recurring_date = $1, last_processed = $2, updated_at = $2
		WHERE id = $3`

	return s.withTx(ctx, "ApplyRecurringOccurrence", func(dbTx *sql.Tx) error {
		if err := insertTransaction(ctx, dbTx, occurrence); err != nil {
			return err
		}
		if err := incrementBalance(ctx, dbTx, occurrence.AccountID, occurrence.UserID, balanceDelta); err != nil {
			return err
		}
		res, err := dbTx.ExecContext(ctx, advance, nextDate, processedAt, parentID)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (id, email, name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("CreateUser: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const query = `SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`
	return s.getUser(ctx, query, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, name, password_hash, created_at FROM users WHERE lower(email) = lower($1)`
	return s.getUser(ctx, query, email)
}

func (s *Store) getUser(ctx context.Context, query string, arg any) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getUser: %w", err)
	}
	return &user, nil
}

func (s *Store) UpsertBudget(ctx context.Context, budget *domain.Budget) error {
	const query = `
		INSERT INTO budgets (id, user_id, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		budget.ID, budget.UserID, budget.Amount, budget.CreatedAt, budget.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("UpsertBudget: %w", err)
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, userID uuid.UUID) (*domain.Budget, error) {
	const query = `
		SELECT id, user_id, amount, last_alert_sent, created_at, updated_at
		FROM budgets WHERE user_id = $1`

	budget, err := scanBudget(s.db.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetBudget: %w", err)
	}
	return budget, nil
}

func (s *Store) ListBudgets(ctx context.Context) ([]*domain.Budget, error) {
	const query = `
		SELECT id, user_id, amount, last_alert_sent, created_at, updated_at
		FROM budgets ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListBudgets: %w", err)
	}
	defer rows.Close()

	var budgets []*domain.Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("ListBudgets: %w", err)
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

func (s *Store) MonthlyExpenses(ctx context.Context, userID, accountID uuid.UUID, monthStart time.Time) (decimal.Decimal, error) {
	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND account_id = $2 AND type = 'EXPENSE'
		  AND date >= date_trunc('month', $3::timestamptz)
		  AND date < date_trunc('month', $3::timestamptz) + interval '1 month'`

	var total decimal.Decimal
	if err := s.db.QueryRowContext(ctx, query, userID, accountID, monthStart).Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("MonthlyExpenses: %w", err)
	}
	return total, nil
}

func (s *Store) MarkAlertSent(ctx context.Context, budgetID uuid.UUID, at time.Time) error {
	const query = `UPDATE budgets SET last_alert_sent = $1, updated_at = $1 WHERE id = $2`

	res, err := s.db.ExecContext(ctx, query, at, budgetID)
	if err != nil {
		return fmt.Errorf("MarkAlertSent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkAlertSent: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// withTx runs fn inside a database transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, op string, fn func(dbTx *sql.Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}

	if err := fn(dbTx); err != nil {
		_ = dbTx.Rollback()
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func insertTransaction(ctx context.Context, dbTx *sql.Tx, tx *domain.Transaction) error {
	const query = `
		INSERT INTO transactions (
			id, user_id, account_id, type, amount, description, date, category,
			receipt_url, status, is_recurring, recurring_interval,
			next_recurring_date, last_processed, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := dbTx.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.AccountID, tx.Type, tx.Amount, tx.Description,
		tx.Date, tx.Category, tx.ReceiptURL, tx.Status, tx.IsRecurring,
		nullInterval(tx.RecurringInterval), nullTime(tx.NextRecurringDate),
		nullTime(tx.LastProcessed), tx.CreatedAt, tx.UpdatedAt,
	)
	return err
}

// incrementBalance applies the delta as an atomic in-database increment.
func incrementBalance(ctx context.Context, dbTx *sql.Tx, accountID, userID uuid.UUID, delta decimal.Decimal) error {
	const query = `
		UPDATE accounts
		SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND user_id = $3`

	res, err := dbTx.ExecContext(ctx, query, delta, accountID, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

const transactionColumns = `
	SELECT id, user_id, account_id, type, amount, description, date, category,
	       receipt_url, status, is_recurring, recurring_interval,
	       next_recurring_date, last_processed, created_at, updated_at
	FROM transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID, &account.UserID, &account.Name, &account.Type,
		&account.Balance, &account.IsDefault, &account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx            domain.Transaction
		interval      sql.NullString
		nextRecurring sql.NullTime
		lastProcessed sql.NullTime
	)
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.Description,
		&tx.Date, &tx.Category, &tx.ReceiptURL, &tx.Status, &tx.IsRecurring,
		&interval, &nextRecurring, &lastProcessed, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if interval.Valid {
		tx.RecurringInterval = domain.RecurringInterval(interval.String)
	}
	if nextRecurring.Valid {
		tx.NextRecurringDate = &nextRecurring.Time
	}
	if lastProcessed.Valid {
		tx.LastProcessed = &lastProcessed.Time
	}
	return &tx, nil
}

func scanBudget(row rowScanner) (*domain.Budget, error) {
	var (
		budget    domain.Budget
		alertSent sql.NullTime
	)
	err := row.Scan(
		&budget.ID, &budget.UserID, &budget.Amount, &alertSent,
		&budget.CreatedAt, &budget.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if alertSent.Valid {
		budget.LastAlertSent = &alertSent.Time
	}
	return &budget, nil
}

func nullInterval(i domain.RecurringInterval) sql.NullString {
	if i == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(i), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Ensure Store implements the full persistence surface.
var _ storage.Store = (*Store)(nil)
