package jobmanager

import (
	"context"

	"github.com/wofare/edgarwatch/internal/models"
)

// Enqueue submits a job to the durable queue, applying type defaults.
// When the job carries a dedup key and a non-terminal job with that key
// exists, the existing job's id is returned and nothing is created.
func (jm *JobManager) Enqueue(ctx context.Context, job *models.Job) (string, error) {
	if job.Priority == 0 {
		job.Priority = models.DefaultPriority(job.Type)
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jm.config.GetMaxRetries()
	}
	return jm.storage.JobQueueStore().Enqueue(ctx, job)
}

// EnqueueMany atomically submits a batch of jobs.
func (jm *JobManager) EnqueueMany(ctx context.Context, jobs []*models.Job) error {
	for _, job := range jobs {
		if job.Priority == 0 {
			job.Priority = models.DefaultPriority(job.Type)
		}
		if job.MaxRetries == 0 {
			job.MaxRetries = jm.config.GetMaxRetries()
		}
	}
	return jm.storage.JobQueueStore().EnqueueMany(ctx, jobs)
}
