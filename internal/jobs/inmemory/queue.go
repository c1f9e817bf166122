package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/ownspend/internal/jobs"
	"github.com/google/uuid"
)

const (
	defaultWorkers      = 5
	defaultRetryBackoff = time.Second
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// This implementation is suitable for single-instance deployments and testing.
type Queue struct {
	jobChan   chan *jobs.IngestEventJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers    int
	backoff    time.Duration
	maxRetries int
}

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithRetryBackoff sets the base delay between retries. The n-th retry waits
// n times the base.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) { q.backoff = d }
}

// WithMaxRetries sets the retry budget of jobs published without one.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxRetries = n
		}
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishIngestEvent blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:    make(chan *jobs.IngestEventJob, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		workers:    defaultWorkers,
		backoff:    defaultRetryBackoff,
		maxRetries: jobs.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishIngestEvent implements the Publisher interface.
func (q *Queue) PublishIngestEvent(ctx context.Context, job *jobs.IngestEventJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return jobs.ErrQueueClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishIngestEvent: save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return jobs.ErrQueueClosed
	}
}

// Start implements the Consumer interface.
// The handler is called concurrently for each job, up to the configured number of workers.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob executes a single job with retry logic.
func (q *Queue) processJob(ctx context.Context, job *jobs.IngestEventJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.save(ctx, job)
		return
	}

	job.Error = err.Error()
	if job.RetryCount >= job.MaxRetries {
		job.Status = jobs.JobStatusFailed
		q.save(ctx, job)
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)

	retry := *job
	time.AfterFunc(time.Duration(retry.RetryCount)*q.backoff, func() {
		retry.Status = jobs.JobStatusPending
		retry.StartedAt = nil
		retry.CompletedAt = nil
		if err := q.PublishIngestEvent(ctx, &retry); err != nil {
			retry.Status = jobs.JobStatusFailed
			retry.Error = fmt.Sprintf("requeue: %v", err)
			q.save(context.Background(), &retry)
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.IngestEventJob) {
	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
