package models

import (
	"encoding/json"
	"time"
)

// Job represents a unit of work in the durable job queue.
// Parameters and Result are JSON documents; each job type has a typed payload
// struct below, parsed once at pull time.
type Job struct {
	ID           string          `json:"id" badgerhold:"unique"`
	Type         string          `json:"type" badgerhold:"index"`
	Status       string          `json:"status" badgerhold:"index"`
	Priority     int             `json:"priority"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	ScheduledFor time.Time       `json:"scheduled_for"`
	StartedAt    time.Time       `json:"started_at,omitempty"`
	CompletedAt  time.Time       `json:"completed_at,omitempty"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	DedupKey     string          `json:"dedup_key,omitempty" badgerhold:"index"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Job type constants
const (
	JobTypePoll         = "POLL"
	JobTypeIngest       = "INGEST"
	JobTypeDiff         = "DIFF"
	JobTypeAlertFanout  = "ALERT_FANOUT"
	JobTypeDeliver      = "DELIVER"
	JobTypePriceRefresh = "PRICE_REFRESH"
	JobTypeCleanup      = "CLEANUP"
)

// Job status constants
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

// Job priorities (higher = processed first)
const (
	PriorityLow    = 1
	PriorityNormal = 5
	PriorityHigh   = 10
)

// IsTerminal reports whether the job has reached a final status.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// DefaultPriority returns the default priority for a job type.
func DefaultPriority(jobType string) int {
	switch jobType {
	case JobTypeDeliver:
		return PriorityHigh
	case JobTypeAlertFanout:
		return PriorityHigh
	case JobTypeIngest:
		return PriorityNormal
	case JobTypePoll:
		return PriorityNormal
	case JobTypePriceRefresh:
		return PriorityLow
	case JobTypeCleanup:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// DefaultDeadline returns the soft execution deadline for a job type.
// Exceeding it trips the normal retry path.
func DefaultDeadline(jobType string) time.Duration {
	switch jobType {
	case JobTypeIngest:
		return 10 * time.Minute
	case JobTypePoll:
		return 5 * time.Minute
	case JobTypeDeliver:
		return 1 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// PollParams is the POLL job payload.
type PollParams struct {
	CIK string `json:"cik"`
}

// IngestParams is the INGEST job payload.
type IngestParams struct {
	CIK            string `json:"cik"`
	AccessionNo    string `json:"accessionNo"`
	FormType       string `json:"formType"`
	ForceReprocess bool   `json:"forceReprocess,omitempty"`
	GenerateAlerts bool   `json:"generateAlerts,omitempty"`
}

// FanoutParams is the ALERT_FANOUT job payload.
type FanoutParams struct {
	FilingID string `json:"filingId"`
}

// DeliverParams is the DELIVER job payload.
type DeliverParams struct {
	AlertID string `json:"alertId"`
}

// PriceRefreshParams is the PRICE_REFRESH job payload.
type PriceRefreshParams struct {
	Symbols []string `json:"symbols,omitempty"` // empty = all watched symbols
}

// CleanupParams is the CLEANUP job payload.
type CleanupParams struct {
	OlderThan string `json:"olderThan,omitempty"` // duration string; default from config
}

// MarshalParams encodes a typed payload into the job Parameters field.
func MarshalParams(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// JobStats summarizes queue state.
type JobStats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	InFlight  int `json:"in_flight"`
}
