// Package jobs defines the async job model for long-running work, currently
// just email import runs. Queue backends implement Publisher and Consumer;
// the in-memory backend serves single-instance deployments.
package jobs

import (
	"context"
	"errors"
	"time"
)

// JobType discriminates job payloads.
type JobType string

const (
	JobTypeImport JobType = "import_transactions"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ErrPermanent marks a handler failure that retrying cannot fix, such as a
// revoked email grant. Wrap it to fail the job immediately.
var ErrPermanent = errors.New("permanent job failure")

// ImportJob asks the worker to run one email import for a card.
type ImportJob struct {
	JobID        string    `json:"job_id"`
	UserID       string    `json:"user_id"`
	CreditCardID string    `json:"credit_card_id"`
	Status       JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Error      string `json:"error,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

// Job is the generic view queue plumbing works with.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

func (j *ImportJob) GetID() string        { return j.JobID }
func (j *ImportJob) GetType() JobType     { return JobTypeImport }
func (j *ImportJob) GetStatus() JobStatus { return j.Status }

// Publisher enqueues jobs.
type Publisher interface {
	PublishImport(ctx context.Context, job *ImportJob) error
	Close() error
}

// Consumer pulls jobs and runs them through a handler.
type Consumer interface {
	Start(ctx context.Context, handler JobHandler) error
	Stop(ctx context.Context) error
}

// JobHandler processes one job. A plain error triggers a retry; an error
// wrapping ErrPermanent fails the job without retrying.
type JobHandler func(ctx context.Context, job Job) error

// JobStore tracks job state so callers can poll progress.
type JobStore interface {
	SaveJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, jobID string) (*ImportJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*ImportJob, error)
}

// JobFilter narrows ListJobs results.
type JobFilter struct {
	CreditCardID string
	Status       JobStatus
	Limit        int
	Offset       int
}
