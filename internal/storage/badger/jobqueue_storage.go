package badger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/models"
)

// jobQueueStorage implements the persistent job queue. A store-level mutex
// serializes claims so at most one worker marks any job RUNNING.
type jobQueueStorage struct {
	store  *Store
	logger *common.Logger

	claimMu sync.Mutex
	dedupMu sync.Mutex
}

// NewJobQueueStorage creates a JobQueueStore backed by BadgerHold.
func NewJobQueueStorage(store *Store, logger *common.Logger) *jobQueueStorage {
	return &jobQueueStorage{store: store, logger: logger}
}

func (s *jobQueueStorage) prepare(job *models.Job) {
	if job.ID == "" {
		job.ID = uuid.New().String()[:8]
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.Priority == 0 {
		job.Priority = models.DefaultPriority(job.Type)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.ScheduledFor.IsZero() {
		job.ScheduledFor = job.CreatedAt
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = 3
	}
}

func (s *jobQueueStorage) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	s.prepare(job)

	// Dedup: only one non-terminal job per dedup key.
	if job.DedupKey != "" {
		s.dedupMu.Lock()
		defer s.dedupMu.Unlock()

		existing, err := s.FindNonTerminalByDedupKey(ctx, job.DedupKey)
		if err != nil {
			return "", err
		}
		if existing != nil {
			return existing.ID, nil
		}
	}

	if err := s.store.db.Upsert(job.ID, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

func (s *jobQueueStorage) EnqueueMany(ctx context.Context, jobs []*models.Job) error {
	// Dedup checks happen under the same lock as single enqueues; the writes
	// then commit in one transaction.
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()

	toWrite := make([]*models.Job, 0, len(jobs))
	for _, job := range jobs {
		s.prepare(job)
		if job.DedupKey != "" {
			existing, err := s.findNonTerminalByDedupKey(job.DedupKey)
			if err != nil {
				return err
			}
			if existing != nil {
				job.ID = existing.ID
				continue
			}
		}
		toWrite = append(toWrite, job)
	}

	db := s.store.db
	txn := db.Badger().NewTransaction(true)
	defer txn.Discard()
	for _, job := range toWrite {
		if err := db.TxUpsert(txn, job.ID, job); err != nil {
			return fmt.Errorf("failed to enqueue job batch: %w", err)
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit job batch: %w", err)
	}
	return nil
}

// Claim atomically selects the highest-priority due pending job and marks it
// RUNNING. Ordering: priority descending, then created_at ascending.
func (s *jobQueueStorage) Claim(_ context.Context, now time.Time) (*models.Job, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var pending []models.Job
	if err := s.store.db.Find(&pending, badgerhold.Where("Status").Eq(models.JobStatusPending)); err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	due := pending[:0]
	for _, j := range pending {
		if !j.ScheduledFor.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	job := due[0]
	job.Status = models.JobStatusRunning
	job.StartedAt = now

	if err := s.store.db.Upsert(job.ID, &job); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	return &job, nil
}

func (s *jobQueueStorage) get(id string) (*models.Job, error) {
	var job models.Job
	if err := s.store.db.Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return &job, nil
}

func (s *jobQueueStorage) GetByID(_ context.Context, id string) (*models.Job, error) {
	return s.get(id)
}

func (s *jobQueueStorage) MarkCompleted(_ context.Context, id string, result []byte) error {
	job, err := s.get(id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = models.JobStatusCompleted
	job.CompletedAt = time.Now()
	job.Result = result
	job.ErrorMessage = ""
	if err := s.store.db.Upsert(id, job); err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	return nil
}

func (s *jobQueueStorage) MarkFailed(_ context.Context, id string, errMsg string) error {
	job, err := s.get(id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = models.JobStatusFailed
	job.CompletedAt = time.Now()
	job.ErrorMessage = errMsg
	if err := s.store.db.Upsert(id, job); err != nil {
		return fmt.Errorf("failed to fail job %s: %w", id, err)
	}
	return nil
}

func (s *jobQueueStorage) Release(_ context.Context, id string, errMsg string, scheduledFor time.Time) error {
	job, err := s.get(id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = models.JobStatusPending
	job.RetryCount++
	job.ErrorMessage = errMsg
	job.ScheduledFor = scheduledFor
	job.StartedAt = time.Time{}
	if err := s.store.db.Upsert(id, job); err != nil {
		return fmt.Errorf("failed to release job %s: %w", id, err)
	}
	return nil
}

func (s *jobQueueStorage) findNonTerminalByDedupKey(dedupKey string) (*models.Job, error) {
	var jobs []models.Job
	query := badgerhold.Where("DedupKey").Eq(dedupKey).
		And("Status").In(models.JobStatusPending, models.JobStatusRunning)
	if err := s.store.db.Find(&jobs, query); err != nil {
		return nil, fmt.Errorf("failed to find job by dedup key: %w", err)
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

func (s *jobQueueStorage) FindNonTerminalByDedupKey(_ context.Context, dedupKey string) (*models.Job, error) {
	return s.findNonTerminalByDedupKey(dedupKey)
}

func (s *jobQueueStorage) Stats(_ context.Context) (*models.JobStats, error) {
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to list jobs for stats: %w", err)
	}

	stats := &models.JobStats{}
	for _, j := range jobs {
		switch j.Status {
		case models.JobStatusPending:
			stats.Pending++
		case models.JobStatusRunning:
			stats.Running++
		case models.JobStatusCompleted:
			stats.Completed++
		case models.JobStatusFailed:
			stats.Failed++
		}
	}
	stats.InFlight = stats.Running
	return stats, nil
}

func (s *jobQueueStorage) ListByStatus(_ context.Context, status string, limit int) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.store.db.Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list jobs by status: %w", err)
	}

	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}

	result := make([]*models.Job, len(jobs))
	for i := range jobs {
		result[i] = &jobs[i]
	}
	return result, nil
}

// ResetRunning returns all RUNNING jobs to PENDING. Called on startup to
// recover jobs that were in-flight when the process died.
func (s *jobQueueStorage) ResetRunning(ctx context.Context) (int, error) {
	return s.resetRunningBefore(time.Now().Add(time.Hour))
}

// ReapStale returns RUNNING jobs started before the cutoff to PENDING.
func (s *jobQueueStorage) ReapStale(_ context.Context, cutoff time.Time) (int, error) {
	return s.resetRunningBefore(cutoff)
}

func (s *jobQueueStorage) resetRunningBefore(cutoff time.Time) (int, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	var running []models.Job
	if err := s.store.db.Find(&running, badgerhold.Where("Status").Eq(models.JobStatusRunning)); err != nil {
		return 0, fmt.Errorf("failed to find running jobs: %w", err)
	}

	count := 0
	for i := range running {
		job := &running[i]
		if job.StartedAt.After(cutoff) {
			continue
		}
		job.Status = models.JobStatusPending
		job.StartedAt = time.Time{}
		job.ScheduledFor = time.Now()
		if err := s.store.db.Upsert(job.ID, job); err != nil {
			return count, fmt.Errorf("failed to reset job %s: %w", job.ID, err)
		}
		count++
	}
	return count, nil
}

func (s *jobQueueStorage) PurgeTerminal(_ context.Context, olderThan time.Time) (int, error) {
	var jobs []models.Job
	query := badgerhold.Where("Status").In(models.JobStatusCompleted, models.JobStatusFailed)
	if err := s.store.db.Find(&jobs, query); err != nil {
		return 0, fmt.Errorf("failed to find terminal jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		if jobs[i].CompletedAt.After(olderThan) {
			continue
		}
		if err := s.store.db.Delete(jobs[i].ID, models.Job{}); err != nil {
			return count, fmt.Errorf("failed to purge job %s: %w", jobs[i].ID, err)
		}
		count++
	}
	return count, nil
}
