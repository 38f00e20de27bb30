package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dvloznov/wealth-tracker/internal/jobs"
)

// Store is an in-memory implementation of the JobStore interface.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.RecurringTransactionJob
}

// NewStore creates a new in-memory job store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*jobs.RecurringTransactionJob),
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(_ context.Context, job *jobs.RecurringTransactionJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *job
	s.jobs[job.JobID] = &cp
	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(_ context.Context, jobID string) (*jobs.RecurringTransactionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}

	cp := *job
	return &cp, nil
}

// ListJobs implements the JobStore interface.
func (s *Store) ListJobs(_ context.Context, filter jobs.JobFilter) ([]*jobs.RecurringTransactionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*jobs.RecurringTransactionJob, 0)
	for _, job := range s.jobs {
		if filter.TransactionID != uuid.Nil && job.TransactionID != filter.TransactionID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		cp := *job
		matched = append(matched, &cp)
	}

	// Newest first.
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []*jobs.RecurringTransactionJob{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

var _ jobs.JobStore = (*Store)(nil)
