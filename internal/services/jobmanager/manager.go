// Package jobmanager runs the durable priority job queue: a bounded worker
// pool draining the store, a poller enqueuing EDGAR polling jobs, and a
// reaper recovering orphaned work.
package jobmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

const (
	idleBackoff  = 1 * time.Second
	errorBackoff = 5 * time.Second
	maxRetryWait = 30 * time.Second
)

// Handler executes one job and returns its result payload.
type Handler func(ctx context.Context, job *models.Job) (any, error)

// JobManager runs the processor pool, poller loop, and reaper.
type JobManager struct {
	storage      interfaces.StorageManager
	logger       *common.Logger
	config       common.JobManagerConfig
	poller       common.PollerConfig
	handlers     map[string]Handler
	cleanupHooks []func(ctx context.Context)

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	now      func() time.Time
	sleepFor func(ctx context.Context, d time.Duration) bool
}

// NewJobManager creates a new job manager. Handlers are registered before
// Start.
func NewJobManager(
	storage interfaces.StorageManager,
	logger *common.Logger,
	config common.JobManagerConfig,
	poller common.PollerConfig,
) *JobManager {
	return &JobManager{
		storage:  storage,
		logger:   logger,
		config:   config,
		poller:   poller,
		handlers: make(map[string]Handler),
		now:      time.Now,
		sleepFor: sleepFor,
	}
}

func sleepFor(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RegisterHandler binds a job type to its handler.
func (jm *JobManager) RegisterHandler(jobType string, handler Handler) {
	jm.handlers[jobType] = handler
}

// safeGo launches a goroutine with panic recovery and logging.
func (jm *JobManager) safeGo(name string, fn func()) {
	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				jm.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in job manager goroutine")
			}
		}()
		fn()
	}()
}

// Start launches the processor pool, poller loop, and reaper.
// Safe to call multiple times — stops any existing loops before starting.
func (jm *JobManager) Start() {
	if jm.cancel != nil {
		jm.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	jm.cancel = cancel

	// Recover jobs that were in-flight when the previous process died.
	if count, err := jm.storage.JobQueueStore().ResetRunning(ctx); err != nil {
		jm.logger.Warn().Err(err).Msg("Failed to reset orphaned running jobs")
	} else if count > 0 {
		jm.logger.Info().Int("count", count).Msg("Reset orphaned running jobs to pending")
	}

	maxConc := jm.config.GetMaxConcurrent()
	for i := 0; i < maxConc; i++ {
		name := fmt.Sprintf("processor-%d", i)
		jm.safeGo(name, func() { jm.processLoop(ctx) })
	}

	jm.safeGo("reaper", func() { jm.reapLoop(ctx) })

	if jm.poller.Enabled {
		jm.safeGo("poller", func() { jm.pollLoop(ctx) })
	}

	jm.logger.Info().
		Int("max_concurrent", maxConc).
		Bool("poller", jm.poller.Enabled).
		Msg("Job manager started")
}

// Stop cancels all loops and waits up to the shutdown grace for completion.
// Jobs still running after the grace are recovered by the next start's
// ResetRunning pass.
func (jm *JobManager) Stop() {
	if jm.cancel != nil {
		jm.cancel()
		jm.cancel = nil
	}

	done := make(chan struct{})
	go func() {
		jm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		jm.logger.Info().Msg("Job manager stopped")
	case <-time.After(jm.config.GetShutdownGrace()):
		jm.logger.Warn().Msg("Job manager shutdown grace elapsed with jobs in flight")
	}
}

// Stats returns queue counts by status.
func (jm *JobManager) Stats(ctx context.Context) (*models.JobStats, error) {
	return jm.storage.JobQueueStore().Stats(ctx)
}

// processLoop continuously claims and executes jobs.
func (jm *JobManager) processLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := jm.storage.JobQueueStore().Claim(ctx, jm.now())
		if err != nil {
			jm.logger.Warn().Err(err).Msg("Processor: claim error")
			if !jm.sleepFor(ctx, errorBackoff) {
				return
			}
			continue
		}
		if job == nil {
			if !jm.sleepFor(ctx, idleBackoff) {
				return
			}
			continue
		}

		jm.executeClaimed(ctx, job)
	}
}

// executeClaimed runs one claimed job with its type deadline, panic
// isolation, and the retry policy. All log lines carry the job id as the
// correlation id.
func (jm *JobManager) executeClaimed(ctx context.Context, job *models.Job) {
	logger := jm.logger.ForJob(job.ID)
	start := jm.now()

	jobCtx, cancel := context.WithTimeout(ctx, models.DefaultDeadline(job.Type))
	result, execErr := jm.runHandler(jobCtx, logger, job)
	cancel()

	duration := jm.now().Sub(start)

	// Cooperative shutdown: release the job instead of burning a retry.
	if ctx.Err() != nil && execErr != nil {
		if err := jm.storage.JobQueueStore().Release(context.Background(), job.ID, "shutdown", jm.now().Add(time.Second)); err != nil {
			logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to release job on shutdown")
		}
		return
	}

	if execErr == nil {
		var payload []byte
		if result != nil {
			payload, _ = json.Marshal(result)
		}
		if err := jm.storage.JobQueueStore().MarkCompleted(ctx, job.ID, payload); err != nil {
			logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to complete job")
		}
		logger.Debug().
			Str("job_id", job.ID).
			Str("job_type", job.Type).
			Dur("duration", duration).
			Msg("Job completed")
		return
	}

	logger.Warn().
		Str("job_id", job.ID).
		Str("job_type", job.Type).
		Dur("duration", duration).
		Err(execErr).
		Msg("Job failed")

	if models.IsRetryable(execErr) && job.RetryCount < job.MaxRetries {
		wait := retryBackoff(job.RetryCount + 1)
		if err := jm.storage.JobQueueStore().Release(ctx, job.ID, execErr.Error(), jm.now().Add(wait)); err != nil {
			logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to release job for retry")
		}
		return
	}

	if err := jm.storage.JobQueueStore().MarkFailed(ctx, job.ID, execErr.Error()); err != nil {
		logger.Warn().Str("job_id", job.ID).Err(err).Msg("Failed to mark job failed")
	}
}

// retryBackoff returns min(30s, 2^retryCount seconds).
func retryBackoff(retryCount int) time.Duration {
	if retryCount > 5 {
		return maxRetryWait
	}
	wait := time.Duration(1<<uint(retryCount)) * time.Second
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}

// runHandler dispatches the job to its handler, converting panics into
// errors so one bad job never kills a worker.
func (jm *JobManager) runHandler(ctx context.Context, logger *common.Logger, job *models.Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("job_id", job.ID).
				Str("job_type", job.Type).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Job handler panicked")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	handler, ok := jm.handlers[job.Type]
	if !ok {
		return nil, &models.ValidationError{Field: "type", Reason: "unknown job type " + job.Type}
	}
	return handler(ctx, job)
}

// reapLoop periodically returns stuck RUNNING jobs to PENDING. A job is
// stuck when its worker stopped heartbeating: started more than
// 3 x heartbeat ago and still RUNNING.
func (jm *JobManager) reapLoop(ctx context.Context) {
	heartbeat := jm.config.GetHeartbeat()
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := jm.now().Add(-3 * heartbeat)
			if count, err := jm.storage.JobQueueStore().ReapStale(ctx, cutoff); err != nil {
				jm.logger.Warn().Err(err).Msg("Reaper: failed to reap stale jobs")
			} else if count > 0 {
				jm.logger.Info().Int("count", count).Msg("Reaper: returned stale running jobs to pending")
			}
		}
	}
}
