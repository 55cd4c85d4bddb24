// Package jobs defines the queue abstractions that decouple statement upload
// from the background work of extracting and categorizing it.
package jobs

import (
	"context"
	"time"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessStatement represents a statement processing job.
	JobTypeProcessStatement JobType = "process_statement"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed. Jobs are never retried
	// automatically; a failed statement requires a fresh upload.
	JobStatusFailed JobStatus = "failed"
)

// ProcessStatementJob represents a job to drive one statement through the
// ingestion pipeline.
type ProcessStatementJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// StatementID is the id of the statement to process.
	StatementID string `json:"statement_id"`

	// Filename is the original upload filename, carried for logging.
	Filename string `json:"filename,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed. Statement-level
	// failures land on the statement row instead; this field only reports
	// infrastructure problems.
	Error string `json:"error,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ProcessStatementJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ProcessStatementJob) GetType() JobType {
	return JobTypeProcessStatement
}

// GetStatus implements the Job interface.
func (j *ProcessStatementJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations.
type Publisher interface {
	// PublishProcessStatement publishes a statement processing job.
	PublishProcessStatement(ctx context.Context, job *ProcessStatementJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job. A returned error marks the
// job failed; it is not re-enqueued.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ProcessStatementJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*ProcessStatementJob, error)

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessStatementJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// StatementID filters jobs by statement ID.
	StatementID string

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
