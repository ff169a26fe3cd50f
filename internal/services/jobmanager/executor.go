package jobmanager

import (
	"context"

	"github.com/wofare/edgarwatch/internal/models"
	"github.com/wofare/edgarwatch/internal/services/alerts"
	"github.com/wofare/edgarwatch/internal/services/ingest"
)

// RegisterWorkflows binds the standard job handlers to their job types.
// Any nil service leaves its job types unregistered.
func (jm *JobManager) RegisterWorkflows(
	workflow *ingest.Workflow,
	fanout *alerts.Service,
	delivery *alerts.Delivery,
	priceRefresh *alerts.PriceRefresh,
) {
	if workflow != nil {
		jm.RegisterHandler(models.JobTypeIngest, func(ctx context.Context, job *models.Job) (any, error) {
			params, err := ingest.ParseIngestParams(job.Parameters)
			if err != nil {
				return nil, err
			}
			return workflow.HandleIngest(ctx, params)
		})
		jm.RegisterHandler(models.JobTypePoll, func(ctx context.Context, job *models.Job) (any, error) {
			params, err := ingest.ParsePollParams(job.Parameters)
			if err != nil {
				return nil, err
			}
			return workflow.HandlePoll(ctx, params)
		})
		// DIFF jobs re-run diffing on an already-ingested filing.
		jm.RegisterHandler(models.JobTypeDiff, func(ctx context.Context, job *models.Job) (any, error) {
			params, err := ingest.ParseIngestParams(job.Parameters)
			if err != nil {
				return nil, err
			}
			params.ForceReprocess = true
			return workflow.HandleIngest(ctx, params)
		})
	}

	if fanout != nil {
		jm.RegisterHandler(models.JobTypeAlertFanout, func(ctx context.Context, job *models.Job) (any, error) {
			params, err := alerts.ParseFanoutParams(job.Parameters)
			if err != nil {
				return nil, err
			}
			return fanout.HandleFanout(ctx, params)
		})
	}

	if delivery != nil {
		jm.RegisterHandler(models.JobTypeDeliver, func(ctx context.Context, job *models.Job) (any, error) {
			params, err := alerts.ParseDeliverParams(job.Parameters)
			if err != nil {
				return nil, err
			}
			return delivery.HandleDeliver(ctx, params)
		})
	}

	if priceRefresh != nil {
		jm.RegisterHandler(models.JobTypePriceRefresh, func(ctx context.Context, job *models.Job) (any, error) {
			params, err := alerts.ParsePriceRefreshParams(job.Parameters)
			if err != nil {
				return nil, err
			}
			return priceRefresh.HandlePriceRefresh(ctx, params)
		})
	}

	jm.RegisterHandler(models.JobTypeCleanup, func(ctx context.Context, job *models.Job) (any, error) {
		return jm.HandleCleanup(ctx, job.Parameters)
	})
}
