// Package processor implements the JobProcessor: the worker-pool runtime
// that dequeues jobs, dispatches them to their registered handler, applies
// the retry policy, records status transitions, and honors graceful
// shutdown. Grounded on the teacher's generation_worker.go panic-recovery
// shape and worker.go's ticker+done-channel shutdown, generalized to a
// semaphore of MaxConcurrency workers.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rezkam/agentforge/internal/dispatch"
	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/retry"
)

// Queue is the subset of jobqueue.Queue the processor depends on.
type Queue interface {
	Dequeue(ctx context.Context) (domain.Job, bool)
	Enqueue(ctx context.Context, job domain.Job) bool
}

// HandlerRegistry is the subset of dispatch.Dispatcher the processor
// depends on for routing and active-job bookkeeping.
type HandlerRegistry interface {
	GetHandler(jobType string) dispatch.Handler
	RegisterActiveJob(jobID string, handle dispatch.CancellationHandle)
	RemoveActiveJob(jobID string)
}

// StatusWriter is the subset of jobstatus.Store the processor depends on.
type StatusWriter interface {
	Set(info domain.JobStatusInfo) error
}

// Meter is the narrow slice of an OTel meter the processor instruments
// itself with. Nil-safe: a zero-value Meter records nothing.
type Meter struct {
	RecordAttempt  func(ctx context.Context, jobType string, outcome string)
	RecordDuration func(ctx context.Context, jobType string, d time.Duration)
}

func (m Meter) attempt(ctx context.Context, jobType, outcome string) {
	if m.RecordAttempt != nil {
		m.RecordAttempt(ctx, jobType, outcome)
	}
}

func (m Meter) duration(ctx context.Context, jobType string, d time.Duration) {
	if m.RecordDuration != nil {
		m.RecordDuration(ctx, jobType, d)
	}
}

// Config bundles everything a Processor needs beyond its collaborators.
type Config struct {
	MaxConcurrency  int
	RetryPolicy     retry.Policy
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
	Meter           Meter
}

// Processor is the worker-pool loop.
type Processor struct {
	queue      Queue
	dispatcher HandlerRegistry
	status     StatusWriter
	cfg        Config
	sem        chan struct{}
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// New returns a Processor wired to the given collaborators.
func New(queue Queue, dispatcher HandlerRegistry, status StatusWriter, cfg Config) *Processor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{
		queue:      queue,
		dispatcher: dispatcher,
		status:     status,
		cfg:        cfg,
		sem:        make(chan struct{}, cfg.MaxConcurrency),
		logger:     cfg.Logger,
	}
}

// Run dequeues jobs until ctx is cancelled, handing each to a worker slot.
// On cancellation it stops dequeueing new jobs and waits up to
// cfg.ShutdownTimeout for in-flight jobs to finish; after the timeout it
// returns without waiting further (the force-cancel signal was already
// delivered to every in-flight job's context, since each is derived from
// ctx).
func (p *Processor) Run(ctx context.Context) error {
dequeueLoop:
	for {
		job, ok := p.queue.Dequeue(ctx)
		if !ok {
			break
		}

		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			break dequeueLoop
		}

		p.wg.Add(1)
		go func(job domain.Job) {
			defer p.wg.Done()
			defer func() { <-p.sem }()
			p.runOne(ctx, job)
		}(job)
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(p.cfg.ShutdownTimeout):
		p.logger.Warn("shutdown timeout exceeded, in-flight jobs force-cancelled via context")
	}
	return nil
}

// runOne executes the full per-job procedure described in spec.md 4.3.
func (p *Processor) runOne(parent context.Context, job domain.Job) {
	handler := p.dispatcher.GetHandler(job.Type)
	if handler == nil {
		p.writeStatus(job, domain.StatusFailed, 0, "no handler registered for job type", nil, nil)
		return
	}

	started := time.Now()
	p.writeStatus(job, domain.StatusRunning, job.RetryCount+1, "", &started, nil)

	jobCtx, cancel := context.WithCancel(parent)
	p.dispatcher.RegisterActiveJob(job.ID, dispatch.NewCancellationHandle(cancel))
	defer func() {
		cancel()
		p.dispatcher.RemoveActiveJob(job.ID)
	}()

	result, err := p.executeWithRecovery(jobCtx, handler, job)
	duration := time.Since(started)
	p.cfg.Meter.duration(jobCtx, job.Type, duration)

	if err != nil && isCancellation(err) {
		p.cfg.Meter.attempt(jobCtx, job.Type, "cancelled")
		p.writeStatus(job, domain.StatusCancelled, job.RetryCount+1, err.Error(), &started, timePtr(time.Now()))
		return
	}

	if err != nil {
		result = domain.Failure(err.Error(), err, !isTerminalPanic(err))
	}

	if result.IsSuccess() {
		p.cfg.Meter.attempt(jobCtx, job.Type, "succeeded")
		p.writeStatus(job, domain.StatusSucceeded, job.RetryCount+1, "", &started, timePtr(time.Now()))
		return
	}

	p.handleFailure(parent, job, result, started)
}

func (p *Processor) handleFailure(parent context.Context, job domain.Job, result domain.JobResult, started time.Time) {
	if retry.ShouldRetry(p.cfg.RetryPolicy.Enabled, job.RetryCount, job.MaxRetries, result.ShouldRetry()) {
		p.cfg.Meter.attempt(parent, job.Type, "retrying")
		p.writeStatus(job, domain.StatusRetrying, job.RetryCount+1, result.ErrorMessage(), &started, timePtr(time.Now()))

		delay := p.cfg.RetryPolicy.ComputeDelay(job.RetryCount)
		select {
		case <-time.After(delay):
		case <-parent.Done():
			return
		}

		retryJob := job.CreateRetryJob()
		p.writeStatus(retryJob, domain.StatusQueued, job.RetryCount+1, result.ErrorMessage(), nil, nil)
		p.queue.Enqueue(parent, retryJob)
		return
	}

	p.cfg.Meter.attempt(parent, job.Type, "failed")
	p.writeStatus(job, domain.StatusFailed, job.RetryCount+1, result.ErrorMessage(), &started, timePtr(time.Now()))
}

// executeWithRecovery converts a handler panic into a non-retriable
// failure, mirroring the teacher's executeWithRecovery/PanicError idiom.
func (p *Processor) executeWithRecovery(ctx context.Context, handler dispatch.Handler, job domain.Job) (result domain.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			p.logger.ErrorContext(ctx, "job handler panicked", "job_id", job.ID, "job_type", job.Type, "panic", r, "stack", stack)
			err = panicError{value: r, stack: stack}
		}
	}()
	result = handler.Execute(ctx, job)
	if ctx.Err() != nil && !result.IsSuccess() {
		return result, ctx.Err()
	}
	return result, nil
}

func (p *Processor) writeStatus(job domain.Job, status domain.JobStatus, attempts int, lastError string, startedAt, completedAt *time.Time) {
	if err := p.status.Set(domain.JobStatusInfo{
		JobID:       job.ID,
		Type:        job.Type,
		Status:      status,
		Attempts:    attempts,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		LastError:   lastError,
	}); err != nil {
		p.logger.Error("failed to write job status", "job_id", job.ID, "status", status, "error", err)
	}
}

type panicError struct {
	value any
	stack string
}

func (e panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

func isTerminalPanic(err error) bool {
	var p panicError
	return errors.As(err, &p)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func timePtr(t time.Time) *time.Time { return &t }
