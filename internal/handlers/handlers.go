// Package handlers implements the two exported job handlers described in
// spec.md 4.8: GeneratePlanJobHandler and ExecutePlanJobHandler. Both
// satisfy dispatch.Handler and are registered with the JobDispatcher at
// startup; neither knows about the queue or worker pool that invokes them.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rezkam/agentforge/internal/domain"
)

// TaskStore is the subset of task persistence both handlers depend on.
type TaskStore interface {
	GetTask(ctx context.Context, taskID string) (domain.AgentTask, error)
	SaveTask(ctx context.Context, task domain.AgentTask) error
}

// Planner produces an AgentPlan for a task, the one collaborator
// GeneratePlanJobHandler needs beyond the store.
type Planner interface {
	Plan(ctx context.Context, task domain.AgentTask) (domain.AgentPlan, error)
}

// Executor runs every step of a task's plan. It returns context.Canceled
// (or a wrapped form of it) when the run is aborted, which the handler
// propagates rather than converting to a retriable failure.
type Executor interface {
	ExecutePlan(ctx context.Context, task domain.AgentTask) error
}

// Dispatcher is the subset of dispatch.Dispatcher GeneratePlanJobHandler
// needs to hand off the follow-up ExecutePlan job.
type Dispatcher interface {
	Dispatch(ctx context.Context, job domain.Job) bool
}

type taskPayload struct {
	TaskId string
}

// ExecutePlanJobType and GeneratePlanJobType are the routing keys both
// handlers register under.
const (
	GeneratePlanJobType = "GeneratePlan"
	ExecutePlanJobType  = "ExecutePlan"
)

// GeneratePlanJobHandler loads a task, asks the Planner for its plan, saves
// it, and enqueues the follow-up ExecutePlan job for the same task.
type GeneratePlanJobHandler struct {
	store      TaskStore
	planner    Planner
	dispatcher Dispatcher
}

// NewGeneratePlanJobHandler wires a GeneratePlanJobHandler.
func NewGeneratePlanJobHandler(store TaskStore, planner Planner, dispatcher Dispatcher) *GeneratePlanJobHandler {
	return &GeneratePlanJobHandler{store: store, planner: planner, dispatcher: dispatcher}
}

// JobType implements dispatch.Handler.
func (h *GeneratePlanJobHandler) JobType() string { return GeneratePlanJobType }

// Execute implements dispatch.Handler.
func (h *GeneratePlanJobHandler) Execute(ctx context.Context, job domain.Job) domain.JobResult {
	var payload taskPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return domain.Failure(fmt.Sprintf("parse payload: %v", err), err, true)
	}

	task, err := h.store.GetTask(ctx, payload.TaskId)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.Failure(err.Error(), err, false)
		}
		return domain.Failure(fmt.Sprintf("load task: %v", err), err, true)
	}

	plan, err := h.planner.Plan(ctx, task)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.Failure(err.Error(), err, false)
		}
		return domain.Failure(fmt.Sprintf("plan task: %v", err), err, true)
	}

	task.Plan = &plan
	task.Status = domain.TaskPlanned
	if err := h.store.SaveTask(ctx, task); err != nil {
		return domain.Failure(fmt.Sprintf("save plan: %v", err), err, true)
	}

	followUp, err := json.Marshal(taskPayload{TaskId: task.ID})
	if err != nil {
		return domain.Failure(fmt.Sprintf("marshal follow-up payload: %v", err), err, true)
	}
	h.dispatcher.Dispatch(ctx, domain.Job{
		ID:             uuid.NewString(),
		Type:           ExecutePlanJobType,
		Payload:        followUp,
		IdempotencyKey: task.ID + "/execute-plan",
	})

	return domain.Success(nil)
}

// ExecutePlanJobHandler runs every step of a task's plan and marks the task
// Completed on success.
type ExecutePlanJobHandler struct {
	store    TaskStore
	executor Executor
}

// NewExecutePlanJobHandler wires an ExecutePlanJobHandler.
func NewExecutePlanJobHandler(store TaskStore, executor Executor) *ExecutePlanJobHandler {
	return &ExecutePlanJobHandler{store: store, executor: executor}
}

// JobType implements dispatch.Handler.
func (h *ExecutePlanJobHandler) JobType() string { return ExecutePlanJobType }

// Execute implements dispatch.Handler.
func (h *ExecutePlanJobHandler) Execute(ctx context.Context, job domain.Job) domain.JobResult {
	var payload taskPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return domain.Failure(fmt.Sprintf("parse payload: %v", err), err, true)
	}

	task, err := h.store.GetTask(ctx, payload.TaskId)
	if err != nil {
		return domain.Failure(fmt.Sprintf("load task: %v", err), err, false)
	}
	if task.Plan == nil {
		return domain.Failure(fmt.Sprintf("task %s has no plan", task.ID), domain.ErrPlanNotFound, false)
	}

	if err := h.executor.ExecutePlan(ctx, task); err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.Failure(err.Error(), err, false)
		}
		return domain.Failure(fmt.Sprintf("execute plan: %v", err), err, true)
	}

	task.Status = domain.TaskCompleted
	if err := h.store.SaveTask(ctx, task); err != nil {
		return domain.Failure(fmt.Sprintf("save completed task: %v", err), err, true)
	}

	return domain.Success(nil)
}
