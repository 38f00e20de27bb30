// Package worker runs the background loops of the service: scanning for due
// recurring transactions and checking budgets for alert thresholds.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/wealth-tracker/internal/domain"
	"github.com/dvloznov/wealth-tracker/internal/jobs"
	"github.com/dvloznov/wealth-tracker/internal/ledger"
	"github.com/dvloznov/wealth-tracker/internal/mailer"
	"github.com/dvloznov/wealth-tracker/internal/storage"
)

// alertThreshold is the budget-used fraction at which an alert is sent.
var alertThreshold = decimal.NewFromFloat(0.8)

// RecurringScanner periodically finds due recurring transactions and
// enqueues a processing job for each.
type RecurringScanner struct {
	store     storage.LedgerStore
	publisher jobs.Publisher
	log       zerolog.Logger
	interval  time.Duration
	batchSize int
	now       func() time.Time
}

func NewRecurringScanner(store storage.LedgerStore, publisher jobs.Publisher, log zerolog.Logger, interval time.Duration, batchSize int) *RecurringScanner {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RecurringScanner{
		store:     store,
		publisher: publisher,
		log:       log,
		interval:  interval,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// Run scans on a ticker until ctx is cancelled. An initial scan runs
// immediately.
func (s *RecurringScanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if err := s.Scan(ctx); err != nil {
		s.log.Error().Err(err).Msg("recurring scan failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				s.log.Error().Err(err).Msg("recurring scan failed")
			}
		}
	}
}

// Scan performs one pass: list due recurring transactions and enqueue a job
// per transaction. Publishing the same transaction twice is harmless because
// the handler re-checks the schedule before processing.
func (s *RecurringScanner) Scan(ctx context.Context) error {
	due, err := s.store.ListDueRecurring(ctx, s.now(), s.batchSize)
	if err != nil {
		return fmt.Errorf("list due recurring: %w", err)
	}

	for _, tx := range due {
		if tx.NextRecurringDate == nil {
			continue
		}
		job := &jobs.RecurringTransactionJob{
			TransactionID: tx.ID,
			UserID:        tx.UserID,
			AccountID:     tx.AccountID,
			DueAt:         *tx.NextRecurringDate,
		}
		if err := s.publisher.PublishRecurringTransaction(ctx, job); err != nil {
			s.log.Error().Err(err).Str("transaction_id", tx.ID.String()).Msg("failed to enqueue recurring job")
			continue
		}
		s.log.Info().
			Str("transaction_id", tx.ID.String()).
			Time("due_at", *tx.NextRecurringDate).
			Msg("enqueued recurring transaction")
	}

	return nil
}

// RecurringHandler returns the job handler that materializes one due
// occurrence.
func RecurringHandler(store storage.LedgerStore, ldg *ledger.Ledger, log zerolog.Logger) jobs.JobHandler {
	return func(ctx context.Context, job jobs.Job) error {
		rj, ok := job.(*jobs.RecurringTransactionJob)
		if !ok {
			return fmt.Errorf("unexpected job type %T", job)
		}

		parent, err := store.GetTransaction(ctx, rj.UserID, rj.TransactionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				// Transaction deleted since the job was enqueued.
				log.Warn().Str("transaction_id", rj.TransactionID.String()).Msg("recurring transaction no longer exists")
				return nil
			}
			return fmt.Errorf("get transaction: %w", err)
		}

		// Re-check due status; a duplicate job for an already-processed
		// occurrence is a no-op.
		if !parent.IsRecurring || parent.NextRecurringDate == nil || parent.NextRecurringDate.After(time.Now()) {
			return nil
		}

		occurrence, err := ldg.ProcessRecurring(ctx, parent)
		if err != nil {
			return fmt.Errorf("process recurring: %w", err)
		}

		log.Info().
			Str("parent_id", parent.ID.String()).
			Str("occurrence_id", occurrence.ID.String()).
			Str("amount", occurrence.Amount.String()).
			Msg("processed recurring transaction")
		return nil
	}
}

// BudgetChecker periodically compares each user's month-to-date spending on
// their default account against their budget and emails an alert when usage
// crosses the threshold.
type BudgetChecker struct {
	store    storage.Store
	sender   mailer.Sender
	log      zerolog.Logger
	interval time.Duration
	now      func() time.Time
}

func NewBudgetChecker(store storage.Store, sender mailer.Sender, log zerolog.Logger, interval time.Duration) *BudgetChecker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &BudgetChecker{
		store:    store,
		sender:   sender,
		log:      log,
		interval: interval,
		now:      time.Now,
	}
}

// Run checks on a ticker until ctx is cancelled.
func (c *BudgetChecker) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	if err := c.Check(ctx); err != nil {
		c.log.Error().Err(err).Msg("budget check failed")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.Check(ctx); err != nil {
				c.log.Error().Err(err).Msg("budget check failed")
			}
		}
	}
}

// Check performs one pass over all budgets.
func (c *BudgetChecker) Check(ctx context.Context) error {
	budgets, err := c.store.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	for _, budget := range budgets {
		if err := c.checkBudget(ctx, budget); err != nil {
			c.log.Error().Err(err).Str("budget_id", budget.ID.String()).Msg("budget check failed for user")
		}
	}

	return nil
}

func (c *BudgetChecker) checkBudget(ctx context.Context, budget *domain.Budget) error {
	now := c.now()

	// At most one alert per calendar month.
	if budget.LastAlertSent != nil &&
		budget.LastAlertSent.Year() == now.Year() &&
		budget.LastAlertSent.Month() == now.Month() {
		return nil
	}
	if budget.Amount.IsZero() {
		return nil
	}

	accounts, err := c.store.ListAccounts(ctx, budget.UserID)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	var account *domain.Account
	for _, a := range accounts {
		if a.IsDefault {
			account = a
			break
		}
	}
	if account == nil {
		return nil
	}

	spent, err := c.store.MonthlyExpenses(ctx, budget.UserID, account.ID, now)
	if err != nil {
		return fmt.Errorf("monthly expenses: %w", err)
	}

	used := spent.Div(budget.Amount)
	if used.LessThan(alertThreshold) {
		return nil
	}

	user, err := c.store.GetUser(ctx, budget.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}

	body, err := mailer.RenderBudgetAlert(mailer.BudgetAlert{
		UserName:    user.Name,
		AccountName: account.Name,
		PercentUsed: used.Mul(decimal.NewFromInt(100)),
		Budget:      budget.Amount,
		Spent:       spent,
		Remaining:   budget.Amount.Sub(spent),
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Budget Alert for %s", account.Name)
	if err := c.sender.Send(ctx, user.Email, subject, body); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}

	if err := c.store.MarkAlertSent(ctx, budget.ID, now); err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}

	c.log.Info().
		Str("user_id", user.ID.String()).
		Str("percent_used", used.Mul(decimal.NewFromInt(100)).StringFixed(1)).
		Msg("budget alert sent")
	return nil
}
