// Package orchestrator implements ExecutePlanJobHandler's ExecutorService
// collaborator (spec.md 4.8): it walks an AgentPlan's steps through the
// StepExecutor, provisioning a sandbox container per task and writing
// artifacts for each step. Planning and code generation are out of
// scope here (external collaborators per spec.md's Non-goals) — this
// package only sequences steps that are already planned.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/step"
)

// ContainerProvisioner is the sandbox container lifecycle collaborator.
// Choosing a specific container runtime is a spec Non-goal: only this
// contract is given.
type ContainerProvisioner interface {
	Provision(ctx context.Context, task domain.AgentTask) (containerID string, release func(), err error)
}

// ArtifactStore is the subset of artifacts.Store the orchestrator writes
// step logs through. Write failures are logged and swallowed: this is
// observability plumbing, not control flow.
type ArtifactStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
}

// StepContextBuilder derives the step.Context (language, file listing,
// build/test tooling) a StepExecutor needs for one task. Sniffing the
// target repository's toolchain is an external, contract-only concern.
type StepContextBuilder interface {
	BuildContext(ctx context.Context, containerID string, task domain.AgentTask) (step.Context, error)
}

// Orchestrator implements the ExecutePlan entry point handlers.Executor
// expects.
type Orchestrator struct {
	steps          *step.Executor
	containers     ContainerProvisioner
	stepContext    StepContextBuilder
	artifacts      ArtifactStore
	maxStepRetries int
	logger         *slog.Logger
}

// New returns an Orchestrator. artifacts may be nil, in which case step
// logs are not persisted.
func New(steps *step.Executor, containers ContainerProvisioner, stepContext StepContextBuilder, artifacts ArtifactStore, maxStepRetries int, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		steps:          steps,
		containers:     containers,
		stepContext:    stepContext,
		artifacts:      artifacts,
		maxStepRetries: maxStepRetries,
		logger:         logger,
	}
}

// ExecutePlan runs every not-yet-done step of task.Plan in order. It
// returns ctx.Err() unwrapped (so callers can detect cancellation with
// errors.Is) when the run is aborted mid-step, and a plain error
// otherwise. Steps already marked Done are skipped, so a retried
// ExecutePlan job resumes rather than restarting.
func (o *Orchestrator) ExecutePlan(ctx context.Context, task domain.AgentTask) error {
	if task.Plan == nil {
		return fmt.Errorf("task %s has no plan", task.ID)
	}

	containerID, release, err := o.containers.Provision(ctx, task)
	if err != nil {
		return fmt.Errorf("provision sandbox: %w", err)
	}
	defer release()

	stepCtx, err := o.stepContext.BuildContext(ctx, containerID, task)
	if err != nil {
		return fmt.Errorf("build step context: %w", err)
	}

	for i := range task.Plan.Steps {
		planStep := task.Plan.Steps[i]
		if planStep.Done {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, err := o.steps.ExecuteStepWithRetry(ctx, containerID, planStep, stepCtx, o.maxStepRetries)
		o.writeArtifacts(ctx, task.ID, planStep.ID, result)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("step %s: %w", planStep.ID, err)
		}
		if !result.Success {
			if rbErr := o.steps.Rollback(ctx, containerID, result); rbErr != nil {
				o.logger.ErrorContext(ctx, "rollback failed", "task_id", task.ID, "step_id", planStep.ID, "error", rbErr)
			}
			return fmt.Errorf("step %s failed: %s", planStep.ID, result.Error)
		}

		task.Plan.Steps[i].Done = true
	}

	return nil
}

// writeArtifacts persists the step's build/test logs to the artifact
// store. Failures here never fail the step: logging is the only
// consequence.
func (o *Orchestrator) writeArtifacts(ctx context.Context, taskID, stepID string, result domain.StepExecutionResult) {
	if o.artifacts == nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "success=%v duration=%s\n", result.Success, result.Duration)
	if result.BuildResult != nil {
		fmt.Fprintf(&b, "build: attempts=%d errors=%v\n", result.BuildResult.Attempts, result.BuildResult.Errors)
	}
	if result.TestResult != nil {
		fmt.Fprintf(&b, "tests: passed=%d failed=%d skipped=%d\n", result.TestResult.Passed, result.TestResult.Failed, result.TestResult.Skipped)
	}

	key := fmt.Sprintf("%s/%s/step.log", taskID, stepID)
	if err := o.artifacts.Put(ctx, key, strings.NewReader(b.String())); err != nil {
		o.logger.WarnContext(ctx, "failed to write step artifact", "task_id", taskID, "step_id", stepID, "error", err)
	}

	o.writeMetricsSnapshot(ctx, taskID, stepID, result.Metrics)
}

// writeMetricsSnapshot persists a flattened, queryable form of the step's
// ExecutionMetrics alongside its log, for later inspection independent of
// any live StepExecutor state.
func (o *Orchestrator) writeMetricsSnapshot(ctx context.Context, taskID, stepID string, metrics domain.ExecutionMetrics) {
	snapshot := domain.ExecutionMetricsSnapshot{
		JobID:         taskID,
		StepID:        stepID,
		RecordedAt:    time.Now(),
		LLMCalls:      metrics.LLMCalls,
		FilesCreated:  metrics.FilesCreated,
		FilesModified: metrics.FilesModified,
		FilesDeleted:  metrics.FilesDeleted,
		BuildAttempts: metrics.BuildAttempts,
		TestAttempts:  metrics.TestAttempts,
		AnalysisMS:    metrics.AnalysisTime.Milliseconds(),
		CodegenMS:     metrics.CodegenTime.Milliseconds(),
		BuildMS:       metrics.BuildTime.Milliseconds(),
		TestMS:        metrics.TestTime.Milliseconds(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to marshal metrics snapshot", "task_id", taskID, "step_id", stepID, "error", err)
		return
	}

	key := fmt.Sprintf("%s/%s/metrics.json", taskID, stepID)
	if err := o.artifacts.Put(ctx, key, strings.NewReader(string(data))); err != nil {
		o.logger.WarnContext(ctx, "failed to write metrics snapshot", "task_id", taskID, "step_id", stepID, "error", err)
	}
}
