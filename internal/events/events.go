// Package events defines the notification contract: after a successful
// ledger write, interested consumers are told which logical paths to refresh.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// TopicTransactions carries transaction lifecycle events.
	TopicTransactions = "ledger.transactions"
)

// Publisher delivers events to interested consumers. Implementations must
// not retry on behalf of the caller; a publish failure is reported once.
type Publisher interface {
	Publish(topic string, event any) error
	Close() error
}

// TransactionWritten is emitted after a create or update commits. RefreshPaths
// names the logical views whose caches are now stale.
type TransactionWritten struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	AccountID     uuid.UUID       `json:"account_id"`
	UserID        uuid.UUID       `json:"user_id"`
	Operation     string          `json:"operation"` // "create" | "update" | "recurring"
	Amount        decimal.Decimal `json:"amount"`
	RefreshPaths  []string        `json:"refresh_paths"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// RefreshPathsFor returns the views invalidated by a write against accountID.
func RefreshPathsFor(accountID uuid.UUID) []string {
	return []string{"/dashboard", "/account/" + accountID.String()}
}
