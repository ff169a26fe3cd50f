package jobmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wofare/edgarwatch/internal/models"
)

// pollLoop periodically enqueues one POLL job per active company. The dedup
// key carries the interval bucket so overlapping ticks coalesce.
func (jm *JobManager) pollLoop(ctx context.Context) {
	if delay := jm.poller.GetStartupDelay(); delay > 0 {
		jm.logger.Info().Dur("delay", delay).Msg("Poller: startup delay before first tick")
		if !jm.sleepFor(ctx, delay) {
			return
		}
	}

	interval := jm.poller.GetInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	jm.pollTick(ctx, interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			jm.pollTick(ctx, interval)
		}
	}
}

// pollTick enqueues POLL jobs for all active companies and purges old
// terminal jobs.
func (jm *JobManager) pollTick(ctx context.Context, interval time.Duration) {
	companies, err := jm.storage.CompanyStore().List(ctx, true)
	if err != nil {
		jm.logger.Warn().Err(err).Msg("Poller: failed to list active companies")
		return
	}

	bucket := jm.now().Truncate(interval).Unix()
	enqueued := 0
	for _, company := range companies {
		job := &models.Job{
			Type:       models.JobTypePoll,
			Priority:   models.PriorityNormal,
			Parameters: models.MarshalParams(models.PollParams{CIK: company.CIK}),
			DedupKey:   fmt.Sprintf("poll:%s:%d", company.CIK, bucket),
			MaxRetries: jm.config.GetMaxRetries(),
		}
		if _, err := jm.Enqueue(ctx, job); err != nil {
			jm.logger.Warn().Str("cik", company.CIK).Err(err).Msg("Poller: failed to enqueue poll job")
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		jm.logger.Debug().Int("companies", enqueued).Msg("Poller: tick complete")
	}

	jm.purgeOldJobs(ctx)
}

// purgeOldJobs removes terminal jobs older than the retention window.
func (jm *JobManager) purgeOldJobs(ctx context.Context) {
	cutoff := jm.now().Add(-jm.config.GetPurgeAfter())
	if _, err := jm.storage.JobQueueStore().PurgeTerminal(ctx, cutoff); err != nil {
		jm.logger.Warn().Err(err).Msg("Poller: failed to purge old jobs")
	}
}

// CleanupResult is the CLEANUP job result payload.
type CleanupResult struct {
	JobsPurged   int `json:"jobsPurged"`
	AlertsPurged int `json:"alertsPurged"`
}

// AddCleanupHook registers extra maintenance run by every CLEANUP job
// (e.g. pruning the quote cache's stale-fallback entries).
func (jm *JobManager) AddCleanupHook(hook func(ctx context.Context)) {
	jm.cleanupHooks = append(jm.cleanupHooks, hook)
}

// HandleCleanup purges terminal jobs and outbox alerts older than the
// retention window (or the override in the job payload), then runs the
// registered cleanup hooks.
func (jm *JobManager) HandleCleanup(ctx context.Context, raw json.RawMessage) (*CleanupResult, error) {
	retention := jm.config.GetPurgeAfter()

	var params models.CleanupParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err == nil && params.OlderThan != "" {
			if d, err := time.ParseDuration(params.OlderThan); err == nil {
				retention = d
			}
		}
	}

	cutoff := jm.now().Add(-retention)

	jobs, err := jm.storage.JobQueueStore().PurgeTerminal(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	alerts, err := jm.storage.OutboxStore().PurgeTerminal(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	for _, hook := range jm.cleanupHooks {
		hook(ctx)
	}

	return &CleanupResult{JobsPurged: jobs, AlertsPurged: alerts}, nil
}
