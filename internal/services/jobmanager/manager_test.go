package jobmanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
	"github.com/wofare/edgarwatch/internal/storage"
)

// --- Helpers ---

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	mgr, err := storage.NewManagerAt(common.NewSilentLogger(), t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test storage: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func newTestManager(t *testing.T, store interfaces.StorageManager) *JobManager {
	t.Helper()
	return NewJobManager(store, common.NewSilentLogger(),
		common.JobManagerConfig{
			MaxConcurrent: 3,
			MaxRetries:    3,
			Heartbeat:     "50ms",
			ShutdownGrace: "2s",
			PurgeAfter:    "24h",
		},
		common.PollerConfig{Enabled: false},
	)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// --- Tests ---

func TestJobManager_ExecutesJob(t *testing.T) {
	store := newTestStorage(t)
	jm := newTestManager(t, store)
	ctx := context.Background()

	var executed atomic.Int64
	jm.RegisterHandler(models.JobTypeCleanup, func(_ context.Context, _ *models.Job) (any, error) {
		executed.Add(1)
		return map[string]int{"purged": 0}, nil
	})

	id, err := jm.Enqueue(ctx, &models.Job{Type: models.JobTypeCleanup})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	jm.Start()
	defer jm.Stop()

	waitFor(t, 5*time.Second, func() bool {
		job, _ := store.JobQueueStore().GetByID(ctx, id)
		return job != nil && job.Status == models.JobStatusCompleted
	})

	if executed.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", executed.Load())
	}
	job, _ := store.JobQueueStore().GetByID(ctx, id)
	if len(job.Result) == 0 {
		t.Error("expected result payload on completed job")
	}
}

// A failing handler is retried with backoff until MaxRetries, then FAILED.
func TestJobManager_RetryThenFail(t *testing.T) {
	store := newTestStorage(t)
	jm := newTestManager(t, store)
	ctx := context.Background()

	var attempts atomic.Int64
	jm.RegisterHandler(models.JobTypeIngest, func(_ context.Context, _ *models.Job) (any, error) {
		attempts.Add(1)
		return nil, &models.TransportError{Endpoint: "edgar", Err: errors.New("boom")}
	})

	// now() is advanced past the retry backoff so the test stays fast.
	var skew atomic.Int64
	jm.now = func() time.Time {
		return time.Now().Add(time.Duration(skew.Load()) * time.Second)
	}
	go func() {
		for i := int64(1); i <= 200; i++ {
			skew.Store(i)
			time.Sleep(10 * time.Millisecond)
		}
	}()

	id, _ := jm.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest, MaxRetries: 2})

	jm.Start()
	defer jm.Stop()

	waitFor(t, 10*time.Second, func() bool {
		job, _ := store.JobQueueStore().GetByID(ctx, id)
		return job != nil && job.Status == models.JobStatusFailed
	})

	// Initial attempt + 2 retries.
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	job, _ := store.JobQueueStore().GetByID(ctx, id)
	if job.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", job.RetryCount)
	}
	if job.ErrorMessage == "" {
		t.Error("expected error message on failed job")
	}
}

// Validation errors never retry.
func TestJobManager_ValidationErrorIsTerminal(t *testing.T) {
	store := newTestStorage(t)
	jm := newTestManager(t, store)
	ctx := context.Background()

	var attempts atomic.Int64
	jm.RegisterHandler(models.JobTypeIngest, func(_ context.Context, _ *models.Job) (any, error) {
		attempts.Add(1)
		return nil, &models.ValidationError{Field: "cik", Reason: "bad"}
	})

	id, _ := jm.Enqueue(ctx, &models.Job{Type: models.JobTypeIngest})

	jm.Start()
	defer jm.Stop()

	waitFor(t, 5*time.Second, func() bool {
		job, _ := store.JobQueueStore().GetByID(ctx, id)
		return job != nil && job.Status == models.JobStatusFailed
	})

	if attempts.Load() != 1 {
		t.Errorf("attempts = %d, want 1 (no retries for validation errors)", attempts.Load())
	}
}

// A panicking handler is isolated: the job fails-with-retry, the worker
// survives and processes further jobs.
func TestJobManager_PanicIsolation(t *testing.T) {
	store := newTestStorage(t)
	jm := newTestManager(t, store)
	ctx := context.Background()

	jm.RegisterHandler(models.JobTypeDiff, func(_ context.Context, _ *models.Job) (any, error) {
		panic("handler exploded")
	})
	var okRuns atomic.Int64
	jm.RegisterHandler(models.JobTypeCleanup, func(_ context.Context, _ *models.Job) (any, error) {
		okRuns.Add(1)
		return nil, nil
	})

	// Retry budget already spent, so the panic fails the job immediately.
	panicID, _ := jm.Enqueue(ctx, &models.Job{Type: models.JobTypeDiff, RetryCount: 3})
	okID, _ := jm.Enqueue(ctx, &models.Job{Type: models.JobTypeCleanup})

	jm.Start()
	defer jm.Stop()

	waitFor(t, 5*time.Second, func() bool {
		p, _ := store.JobQueueStore().GetByID(ctx, panicID)
		o, _ := store.JobQueueStore().GetByID(ctx, okID)
		return p != nil && p.Status == models.JobStatusFailed &&
			o != nil && o.Status == models.JobStatusCompleted
	})

	if okRuns.Load() != 1 {
		t.Errorf("worker did not survive the panic, ok runs = %d", okRuns.Load())
	}
}

func TestJobManager_UnknownJobTypeFails(t *testing.T) {
	store := newTestStorage(t)
	jm := newTestManager(t, store)
	ctx := context.Background()

	id, _ := jm.Enqueue(ctx, &models.Job{Type: "MYSTERY"})

	jm.Start()
	defer jm.Stop()

	waitFor(t, 5*time.Second, func() bool {
		job, _ := store.JobQueueStore().GetByID(ctx, id)
		return job != nil && job.Status == models.JobStatusFailed
	})
}

func TestJobManager_StartResetsOrphanedRunning(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	// Simulate a crash: a job stuck RUNNING from a previous process.
	id, _ := store.JobQueueStore().Enqueue(ctx, &models.Job{Type: models.JobTypeCleanup})
	if _, err := store.JobQueueStore().Claim(ctx, time.Now()); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	jm := newTestManager(t, store)
	var executed atomic.Int64
	jm.RegisterHandler(models.JobTypeCleanup, func(_ context.Context, _ *models.Job) (any, error) {
		executed.Add(1)
		return nil, nil
	})

	jm.Start()
	defer jm.Stop()

	waitFor(t, 5*time.Second, func() bool {
		job, _ := store.JobQueueStore().GetByID(ctx, id)
		return job != nil && job.Status == models.JobStatusCompleted
	})
	if executed.Load() != 1 {
		t.Errorf("orphaned job executed %d times, want 1", executed.Load())
	}
}

func TestJobManager_StatsAndStop(t *testing.T) {
	store := newTestStorage(t)
	jm := newTestManager(t, store)
	ctx := context.Background()

	release := make(chan struct{})
	jm.RegisterHandler(models.JobTypeCleanup, func(handlerCtx context.Context, _ *models.Job) (any, error) {
		select {
		case <-release:
			return nil, nil
		case <-handlerCtx.Done():
			return nil, handlerCtx.Err()
		}
	})

	jm.Enqueue(ctx, &models.Job{Type: models.JobTypeCleanup})
	jm.Start()

	waitFor(t, 5*time.Second, func() bool {
		stats, _ := jm.Stats(ctx)
		return stats != nil && stats.Running == 1
	})

	close(release)
	waitFor(t, 5*time.Second, func() bool {
		stats, _ := jm.Stats(ctx)
		return stats != nil && stats.Completed == 1 && stats.Running == 0
	})

	jm.Stop()
}

func TestHandleCleanup_RunsHooks(t *testing.T) {
	store := newTestStorage(t)
	jm := newTestManager(t, store)
	ctx := context.Background()

	var hookRuns atomic.Int64
	jm.AddCleanupHook(func(_ context.Context) { hookRuns.Add(1) })

	id, _ := store.JobQueueStore().Enqueue(ctx, &models.Job{Type: models.JobTypeIngest})
	if err := store.JobQueueStore().MarkCompleted(ctx, id, nil); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	result, err := jm.HandleCleanup(ctx, models.MarshalParams(models.CleanupParams{OlderThan: "0s"}))
	if err != nil {
		t.Fatalf("HandleCleanup: %v", err)
	}
	if result.JobsPurged != 1 {
		t.Errorf("jobs purged = %d, want 1", result.JobsPurged)
	}
	if hookRuns.Load() != 1 {
		t.Errorf("cleanup hooks ran %d times, want 1", hookRuns.Load())
	}
}

func TestRetryBackoff_CapsAt30s(t *testing.T) {
	cases := map[int]time.Duration{
		1:  2 * time.Second,
		2:  4 * time.Second,
		3:  8 * time.Second,
		4:  16 * time.Second,
		5:  30 * time.Second,
		10: 30 * time.Second,
	}
	for retry, want := range cases {
		if got := retryBackoff(retry); got != want {
			t.Errorf("retryBackoff(%d) = %v, want %v", retry, got, want)
		}
	}
}
