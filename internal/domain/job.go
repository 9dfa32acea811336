// Package domain holds the core data model shared by every subsystem of the
// job fabric and step executor: jobs, their lifecycle status, the agent's
// plan/step representation, and the results a step execution produces.
package domain

import "time"

// Job is a unit of background work. It is immutable once enqueued except for
// the retry lineage produced by CreateRetryJob: a retry never mutates the
// original, it stamps out a new record with RetryCount incremented.
type Job struct {
	ID             string
	Type           string
	Payload        []byte
	Priority       int
	MaxRetries     int
	RetryCount     int
	IdempotencyKey string // empty means "no deduplication requested"
	Metadata       map[string]string
	CreatedAt      time.Time
}

// CreateRetryJob returns a new Job preserving ID, Type, Payload, Priority,
// MaxRetries and Metadata, with RetryCount incremented by one. The original
// Job value is left untouched.
func (j Job) CreateRetryJob() Job {
	retry := j
	retry.RetryCount = j.RetryCount + 1
	if j.Metadata != nil {
		retry.Metadata = make(map[string]string, len(j.Metadata))
		for k, v := range j.Metadata {
			retry.Metadata[k] = v
		}
	}
	return retry
}

// JobResult is the outcome a Handler reports for one execution attempt.
// Exactly one of the two constructors below should be used to build it;
// the zero value is not a meaningful result.
type JobResult struct {
	success      bool
	data         any
	errorMessage string
	cause        error
	shouldRetry  bool
}

// Success builds a successful JobResult carrying opaque handler data.
func Success(data any) JobResult {
	return JobResult{success: true, data: data}
}

// Failure builds a failed JobResult. shouldRetry=false is final regardless
// of how many retries the job has remaining.
func Failure(errorMessage string, cause error, shouldRetry bool) JobResult {
	return JobResult{
		success:      false,
		errorMessage: errorMessage,
		cause:        cause,
		shouldRetry:  shouldRetry,
	}
}

// IsSuccess reports whether the result represents a successful execution.
func (r JobResult) IsSuccess() bool { return r.success }

// Data returns the payload attached to a successful result.
func (r JobResult) Data() any { return r.data }

// ErrorMessage returns the human-readable failure description.
func (r JobResult) ErrorMessage() string { return r.errorMessage }

// Cause returns the underlying error, if any, behind a failed result.
func (r JobResult) Cause() error { return r.cause }

// ShouldRetry reports whether the processor should consider retrying.
func (r JobResult) ShouldRetry() bool { return r.shouldRetry }

// JobStatus enumerates the lifecycle states of JobStatusInfo. The only
// transitions honored by the processor are Queued -> Running ->
// {Succeeded | Failed | Retrying | Cancelled}, and Retrying -> Queued.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusRunning   JobStatus = "running"
	StatusSucceeded JobStatus = "succeeded"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
	StatusRetrying  JobStatus = "retrying"
)

// JobStatusInfo is the durable-ish record of a job's lifecycle, kept in the
// JobStatusStore independent of whether the Job itself is still queued.
type JobStatusInfo struct {
	JobID       string
	Type        string
	Status      JobStatus
	Source      string
	Attempts    int
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   string
}
