package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrJobNotFound is returned by JobStore lookups for unknown ids.
var ErrJobNotFound = errors.New("job not found")

// ErrQueueClosed is returned when publishing to or starting a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeIngestEvent represents ingesting one device event.
	JobTypeIngestEvent JobType = "ingest_event"
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
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// DefaultMaxRetries applies to jobs published without MaxRetries.
const DefaultMaxRetries = 3

// IngestEventJob carries one event from a batch upload or backfill to the
// ingestion service.
type IngestEventJob struct {
	JobID string `json:"job_id"`

	// BatchID groups the jobs of one upload.
	BatchID string `json:"batch_id,omitempty"`

	OwnerID    string    `json:"owner_id"`
	DeviceID   string    `json:"device_id,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Package    string    `json:"package,omitempty"`
	RawText    string    `json:"raw_text"`
	Timestamp  time.Time `json:"timestamp"`

	// EventID and TransactionID are filled in by the handler.
	EventID       string `json:"event_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Parsed        bool   `json:"parsed"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
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
func (j *IngestEventJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *IngestEventJob) GetType() JobType {
	return JobTypeIngestEvent
}

// GetStatus implements the Job interface.
func (j *IngestEventJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher defines the interface for publishing jobs to a queue.
type Publisher interface {
	// PublishIngestEvent publishes an event ingestion job.
	PublishIngestEvent(ctx context.Context, job *IngestEventJob) error

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

// JobHandler is a function that processes a job.
// It should return an error if the job failed and should be retried.
type JobHandler func(ctx context.Context, job Job) error

// JobStore defines the interface for storing and retrieving job status.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *IngestEventJob) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID string) (*IngestEventJob, error)

	// ListJobs retrieves jobs with optional filtering, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*IngestEventJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	BatchID string
	OwnerID string
	Status  JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
