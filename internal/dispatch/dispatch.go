// Package dispatch implements the JobDispatcher: the façade that registers
// handlers by job type, deduplicates by idempotency key, and hands accepted
// jobs to the JobQueue. Every collaborator interface here is owned by this
// package (the consumer), not by the packages that happen to implement
// them — the same "interface owned by the consumer" convention the teacher
// applies to its Repository/GenerationCoordinator boundaries.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rezkam/agentforge/internal/domain"
)

// Handler is the one thing every job handler must implement.
type Handler interface {
	JobType() string
	Execute(ctx context.Context, job domain.Job) domain.JobResult
}

// Queue is the subset of jobqueue.Queue the dispatcher depends on.
type Queue interface {
	Enqueue(ctx context.Context, job domain.Job) bool
}

// StatusWriter is the subset of jobstatus.Store the dispatcher depends on.
type StatusWriter interface {
	Set(info domain.JobStatusInfo) error
}

// Dedup is the subset of dedup.Index (or its SQL-backed equivalent) the
// dispatcher depends on.
type Dedup interface {
	GetInFlight(key string) (jobID string, ok bool)
	Register(jobID, key string) (owner string, registered bool)
	Unregister(jobID string)
}

// CancellationHandle lets the dispatcher request cooperative cancellation
// of a running job without knowing how the processor implements it.
type CancellationHandle interface {
	Cancel()
}

// cancelFuncHandle adapts a context.CancelFunc to CancellationHandle.
type cancelFuncHandle struct {
	cancel context.CancelFunc
}

func (h cancelFuncHandle) Cancel() { h.cancel() }

// NewCancellationHandle wraps a context.CancelFunc for RegisterActiveJob.
func NewCancellationHandle(cancel context.CancelFunc) CancellationHandle {
	return cancelFuncHandle{cancel: cancel}
}

// Dispatcher maintains the handler registry and the set of active jobs.
type Dispatcher struct {
	queue  Queue
	status StatusWriter
	dedup  Dedup

	mu         sync.RWMutex
	handlers   map[string]Handler
	activeJobs map[string]CancellationHandle
}

// New returns a Dispatcher wired to the given Queue, StatusWriter and Dedup.
func New(queue Queue, status StatusWriter, dedup Dedup) *Dispatcher {
	return &Dispatcher{
		queue:      queue,
		status:     status,
		dedup:      dedup,
		handlers:   make(map[string]Handler),
		activeJobs: make(map[string]CancellationHandle),
	}
}

// RegisterHandler registers h for its JobType. The first registration for a
// type wins; later registrations for the same type are dropped with a
// warning-level log.
func (d *Dispatcher) RegisterHandler(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[h.JobType()]; exists {
		slog.Warn("duplicate handler registration ignored", "job_type", h.JobType())
		return
	}
	d.handlers[h.JobType()] = h
}

// GetHandler returns the handler registered for jobType, or nil.
func (d *Dispatcher) GetHandler(jobType string) Handler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[jobType]
}

// Dispatch implements spec.md 4.2: looks up a handler, consults the dedup
// index, registers the job, enqueues it, and writes the initial Queued
// status. Returns false only when the job was not accepted at all; a
// merged duplicate returns true without enqueueing.
func (d *Dispatcher) Dispatch(ctx context.Context, job domain.Job) bool {
	if d.GetHandler(job.Type) == nil {
		return false
	}

	if job.IdempotencyKey != "" {
		if _, inFlight := d.dedup.GetInFlight(job.IdempotencyKey); inFlight {
			return true
		}
		if _, registered := d.dedup.Register(job.ID, job.IdempotencyKey); !registered {
			return true
		}
	}

	if !d.queue.Enqueue(ctx, job) {
		if job.IdempotencyKey != "" {
			d.dedup.Unregister(job.ID)
		}
		return false
	}

	if err := d.status.Set(domain.JobStatusInfo{
		JobID:  job.ID,
		Type:   job.Type,
		Status: domain.StatusQueued,
	}); err != nil {
		slog.Error("failed to write queued status", "job_id", job.ID, "error", err)
	}

	return true
}

// RegisterActiveJob records the cancellation handle for a job the processor
// has started running.
func (d *Dispatcher) RegisterActiveJob(jobID string, handle CancellationHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activeJobs[jobID] = handle
}

// RemoveActiveJob is called by the processor once a job reaches a terminal
// status.
func (d *Dispatcher) RemoveActiveJob(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.activeJobs, jobID)
}

// CancelJob cancels the stored handle for jobID. Returns false if the job
// is unknown or already completed. Removal from activeJobs is eventual:
// this call only signals cancellation, the processor removes the entry
// once the job actually terminates.
func (d *Dispatcher) CancelJob(jobID string) bool {
	d.mu.RLock()
	handle, ok := d.activeJobs[jobID]
	d.mu.RUnlock()
	if !ok {
		return false
	}
	handle.Cancel()
	return true
}
