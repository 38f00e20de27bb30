package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/wealth-tracker/internal/jobs"
)

func TestQueueProcessesJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 2, store)
	defer queue.Close()

	done := make(chan string, 1)
	handler := func(_ context.Context, job jobs.Job) error {
		done <- job.GetID()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.RecurringTransactionJob{
		TransactionID: uuid.New(),
		UserID:        uuid.New(),
		AccountID:     uuid.New(),
		DueAt:         time.Now(),
	}
	if err := queue.PublishRecurringTransaction(ctx, job); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if job.JobID == "" {
		t.Error("expected job ID to be assigned")
	}
	if job.MaxRetries != 3 {
		t.Errorf("max retries = %d, want 3", job.MaxRetries)
	}

	select {
	case id := <-done:
		if id != job.JobID {
			t.Errorf("processed job %s, want %s", id, job.JobID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job not processed in time")
	}

	// The store eventually records completion.
	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, err := store.GetJob(ctx, job.JobID)
		if err == nil && stored.Status == jobs.JobStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never marked completed; last status: %v err: %v", stored, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueueRetriesFailedJob(t *testing.T) {
	store := NewStore()
	queue := NewQueue(10, 1, store)
	defer queue.Close()

	var attempts atomic.Int32
	succeeded := make(chan struct{})
	handler := func(_ context.Context, _ jobs.Job) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient failure")
		}
		close(succeeded)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := queue.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}

	job := &jobs.RecurringTransactionJob{
		TransactionID: uuid.New(),
		DueAt:         time.Now(),
	}
	if err := queue.PublishRecurringTransaction(ctx, job); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-succeeded:
	case <-time.After(10 * time.Second):
		t.Fatalf("job never succeeded after retries; attempts: %d", attempts.Load())
	}
}

func TestQueueRejectsAfterClose(t *testing.T) {
	queue := NewQueue(10, 1, nil)
	if err := queue.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	job := &jobs.RecurringTransactionJob{TransactionID: uuid.New()}
	if err := queue.PublishRecurringTransaction(context.Background(), job); err == nil {
		t.Error("expected publish on closed queue to fail")
	}
}

func TestStoreFilters(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	txID := uuid.New()
	for i, status := range []jobs.JobStatus{jobs.JobStatusPending, jobs.JobStatusCompleted, jobs.JobStatusCompleted} {
		job := &jobs.RecurringTransactionJob{
			JobID:         uuid.New().String(),
			TransactionID: txID,
			Status:        status,
			CreatedAt:     time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := store.SaveJob(ctx, job); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}
	other := &jobs.RecurringTransactionJob{
		JobID:         uuid.New().String(),
		TransactionID: uuid.New(),
		Status:        jobs.JobStatusCompleted,
	}
	if err := store.SaveJob(ctx, other); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	completed, err := store.ListJobs(ctx, jobs.JobFilter{TransactionID: txID, Status: jobs.JobStatusCompleted})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(completed) != 2 {
		t.Fatalf("got %d jobs, want 2", len(completed))
	}

	limited, err := store.ListJobs(ctx, jobs.JobFilter{TransactionID: txID, Limit: 1})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("got %d jobs, want 1", len(limited))
	}
}
