// Package jobs defines the asynchronous work items of the service and the
// queue abstractions for distributing them.
package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeRecurringTransaction materializes one due occurrence of a
	// recurring transaction.
	JobTypeRecurringTransaction JobType = "recurring_transaction"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// RecurringTransactionJob asks a worker to process one due recurring
// transaction.
type RecurringTransactionJob struct {
	JobID string `json:"job_id"`

	// TransactionID is the recurring (parent) transaction to process.
	TransactionID uuid.UUID `json:"transaction_id"`
	UserID        uuid.UUID `json:"user_id"`
	AccountID     uuid.UUID `json:"account_id"`

	// DueAt is the occurrence date that made this job eligible.
	DueAt time.Time `json:"due_at"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *RecurringTransactionJob) GetID() string        { return j.JobID }
func (j *RecurringTransactionJob) GetType() JobType     { return JobTypeRecurringTransaction }
func (j *RecurringTransactionJob) GetStatus() JobStatus { return j.Status }

// Publisher defines the interface for publishing jobs to a queue.
// The in-memory queue suits single-instance deployments; multi-instance
// deployments would swap in a durable broker behind the same interface.
type Publisher interface {
	PublishRecurringTransaction(ctx context.Context, job *RecurringTransactionJob) error
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs; handler is called for each job received.
	Start(ctx context.Context, handler JobHandler) error
	// Stop stops consuming and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the job for retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state so processing can be observed and audited.
type JobStore interface {
	SaveJob(ctx context.Context, job *RecurringTransactionJob) error
	GetJob(ctx context.Context, jobID string) (*RecurringTransactionJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*RecurringTransactionJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	TransactionID uuid.UUID
	Status        JobStatus
	Limit         int
	Offset        int
}
