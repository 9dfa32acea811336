// Package step implements the StepExecutor: the analyze/act/verify loop
// that turns one PlanStep into file changes inside a sandboxed container,
// plus its retry wrapper and rollback path. Every collaborator here is a
// narrow, consumer-owned interface — the StepExecutor doesn't know or care
// whether CodeGenerator calls an LLM API, a template engine, or a stub.
package step

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rezkam/agentforge/internal/domain"
)

// Context describes the project the step is being applied within: the
// language and build tooling the collaborators need to act correctly.
type Context struct {
	Language      string
	Files         []string
	TestFramework string
	BuildTool     string
}

// StepAnalyzer turns a PlanStep into a concrete ordered set of file actions.
type StepAnalyzer interface {
	Analyze(ctx context.Context, step domain.PlanStep, stepCtx Context) (domain.StepActionPlan, error)
}

// CodeGenerator synthesizes file content for an action whose request carries
// no literal content. priorContent is nil for CreateFile, non-nil for
// ModifyFile.
type CodeGenerator interface {
	Generate(ctx context.Context, req domain.CodeGenerationRequest, priorContent *string) (string, error)
}

// FileEditor applies file-level mutations inside the sandbox and tracks
// them so Rollback and GetChanges can later report what happened. A single
// FileEditor instance is used by exactly one StepExecutor.Execute call at a
// time, per spec's shared-resource policy.
type FileEditor interface {
	CreateFile(ctx context.Context, containerID, path, content string) error
	ModifyFile(ctx context.Context, containerID, path string, transform func(string) string) error
	DeleteFile(ctx context.Context, containerID, path string) error
	ReadFile(ctx context.Context, containerID, path string) (string, error)
	GetChanges() []domain.FileChange
	ClearChanges() error
}

// BuildVerifier runs the project's build, retrying internal fixes up to
// maxRetries times before reporting failure.
type BuildVerifier interface {
	VerifyBuild(ctx context.Context, containerID string, maxRetries int) (domain.BuildResult, error)
}

// TestValidator runs the project's test suite, same retry contract as
// BuildVerifier.
type TestValidator interface {
	RunAndValidate(ctx context.Context, containerID string, maxRetries int) (domain.TestValidationResult, error)
}

// QualityChecker applies best-effort lint/format fixes. Its failures never
// fail the step.
type QualityChecker interface {
	CheckAndFix(ctx context.Context, containerID string) error
}

// RollbackError wraps a failure from the outer rollback setup or the
// change-log clear phase — the one case spec.md's InvalidOperationException
// surfaces, as opposed to the per-entry errors Rollback otherwise swallows.
type RollbackError struct {
	cause error
}

func (e *RollbackError) Error() string { return fmt.Sprintf("rollback failed: %v", e.cause) }
func (e *RollbackError) Unwrap() error { return e.cause }

// Executor runs the analyze -> act -> build-verify -> test-validate ->
// quality procedure for one PlanStep.
type Executor struct {
	analyzer   StepAnalyzer
	codegen    CodeGenerator
	editor     FileEditor
	builder    BuildVerifier
	tester     TestValidator
	quality    QualityChecker
	logger     *slog.Logger
	buildRetry int
	testRetry  int
}

// New returns an Executor wired to the given collaborators. buildRetry and
// testRetry bound the internal fix-and-retry budget VerifyBuild and
// RunAndValidate are each given.
func New(analyzer StepAnalyzer, codegen CodeGenerator, editor FileEditor, builder BuildVerifier, tester TestValidator, quality QualityChecker, buildRetry, testRetry int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		analyzer:   analyzer,
		codegen:    codegen,
		editor:     editor,
		builder:    builder,
		tester:     tester,
		quality:    quality,
		logger:     logger,
		buildRetry: buildRetry,
		testRetry:  testRetry,
	}
}

// Execute runs one attempt at step in containerID, following spec.md 4.7
// exactly: analyze, apply actions, conditionally generate tests,
// build-verify, test-validate, then a non-fatal quality pass.
func (e *Executor) Execute(ctx context.Context, containerID string, step domain.PlanStep, stepCtx Context) (domain.StepExecutionResult, error) {
	started := time.Now()
	var metrics domain.ExecutionMetrics

	analysisStart := time.Now()
	plan, err := e.analyzer.Analyze(ctx, step, stepCtx)
	metrics.AnalysisTime = time.Since(analysisStart)
	metrics.LLMCalls++
	if err != nil {
		return e.fail(plan, metrics, started, fmt.Sprintf("analysis failed: %v", err)), nil
	}

	if err := e.applyActions(ctx, containerID, plan, &metrics); err != nil {
		return e.fail(plan, metrics, started, err.Error()), nil
	}

	if plan.RequiresTests && plan.MainFile != "" {
		if err := e.generateTests(ctx, containerID, plan, &metrics); err != nil {
			return e.fail(plan, metrics, started, err.Error()), nil
		}
	}

	buildStart := time.Now()
	buildResult, err := e.builder.VerifyBuild(ctx, containerID, e.buildRetry)
	metrics.BuildTime = time.Since(buildStart)
	metrics.BuildAttempts = buildResult.Attempts
	metrics.LLMCalls += buildResult.FixesApplied
	if err != nil {
		return e.fail(plan, metrics, started, fmt.Sprintf("build verification errored: %v", err)), nil
	}
	if !buildResult.Success {
		result := e.fail(plan, metrics, started, fmt.Sprintf("Build failed: %v", buildResult.Errors))
		result.BuildResult = &buildResult
		return result, nil
	}

	testStart := time.Now()
	testResult, err := e.tester.RunAndValidate(ctx, containerID, e.testRetry)
	metrics.TestTime = time.Since(testStart)
	metrics.TestAttempts = testResult.Attempts
	metrics.LLMCalls += testResult.FixesApplied
	if err != nil {
		result := e.fail(plan, metrics, started, fmt.Sprintf("test validation errored: %v", err))
		result.BuildResult = &buildResult
		return result, nil
	}
	if !testResult.AllPassed {
		result := e.fail(plan, metrics, started, fmt.Sprintf("Tests failed: %d/%d passed", testResult.Passed, testResult.Total))
		result.BuildResult = &buildResult
		result.TestResult = &testResult
		return result, nil
	}

	if e.quality != nil {
		if err := e.quality.CheckAndFix(ctx, containerID); err != nil {
			e.logger.WarnContext(ctx, "quality check failed, step still succeeds", "step_id", step.ID, "error", err)
		}
	}

	changes := e.editor.GetChanges()
	for _, action := range plan.Actions {
		switch action.Type {
		case domain.ActionCreateFile:
			metrics.FilesCreated++
		case domain.ActionModifyFile:
			metrics.FilesModified++
		case domain.ActionDeleteFile:
			metrics.FilesDeleted++
		}
	}

	return domain.StepExecutionResult{
		Success:     true,
		Changes:     changes,
		BuildResult: &buildResult,
		TestResult:  &testResult,
		ActionPlan:  plan,
		Duration:    time.Since(started),
		Metrics:     metrics,
	}, nil
}

func (e *Executor) applyActions(ctx context.Context, containerID string, plan domain.StepActionPlan, metrics *domain.ExecutionMetrics) error {
	for _, action := range plan.Actions {
		switch action.Type {
		case domain.ActionCreateFile:
			content := action.Request.Content
			if content == "" {
				genStart := time.Now()
				generated, err := e.codegen.Generate(ctx, action.Request, nil)
				metrics.CodegenTime += time.Since(genStart)
				metrics.LLMCalls++
				if err != nil {
					return fmt.Errorf("generate content for %s: %w", action.FilePath, err)
				}
				content = generated
			}
			if err := e.editor.CreateFile(ctx, containerID, action.FilePath, content); err != nil {
				return fmt.Errorf("create file %s: %w", action.FilePath, err)
			}

		case domain.ActionModifyFile:
			existing, err := e.editor.ReadFile(ctx, containerID, action.FilePath)
			if err != nil {
				return fmt.Errorf("read file %s: %w", action.FilePath, err)
			}
			content := action.Request.Content
			if content == "" {
				genStart := time.Now()
				generated, err := e.codegen.Generate(ctx, action.Request, &existing)
				metrics.CodegenTime += time.Since(genStart)
				metrics.LLMCalls++
				if err != nil {
					return fmt.Errorf("generate content for %s: %w", action.FilePath, err)
				}
				content = generated
			}
			if err := e.editor.ModifyFile(ctx, containerID, action.FilePath, func(string) string { return content }); err != nil {
				return fmt.Errorf("modify file %s: %w", action.FilePath, err)
			}

		case domain.ActionDeleteFile:
			if err := e.editor.DeleteFile(ctx, containerID, action.FilePath); err != nil {
				return fmt.Errorf("delete file %s: %w", action.FilePath, err)
			}
		}
	}
	return nil
}

func (e *Executor) generateTests(ctx context.Context, containerID string, plan domain.StepActionPlan, metrics *domain.ExecutionMetrics) error {
	genStart := time.Now()
	content, err := e.codegen.Generate(ctx, domain.CodeGenerationRequest{Instructions: "generate tests for " + plan.MainFile}, nil)
	metrics.CodegenTime += time.Since(genStart)
	metrics.LLMCalls++
	if err != nil {
		return fmt.Errorf("generate tests: %w", err)
	}
	if plan.TestFile == "" {
		return nil
	}
	if err := e.editor.CreateFile(ctx, containerID, plan.TestFile, content); err != nil {
		return fmt.Errorf("write generated tests to %s: %w", plan.TestFile, err)
	}
	return nil
}

func (e *Executor) fail(plan domain.StepActionPlan, metrics domain.ExecutionMetrics, started time.Time, message string) domain.StepExecutionResult {
	return domain.StepExecutionResult{
		Success:    false,
		Error:      message,
		Changes:    e.editor.GetChanges(),
		ActionPlan: plan,
		Duration:   time.Since(started),
		Metrics:    metrics,
	}
}

// ExecuteStepWithRetry runs up to maxRetries+1 attempts, re-invoking the
// analyzer each time so it can adapt its plan given the prior failure.
// Returns the first successful result, or the last failure if none succeed.
func (e *Executor) ExecuteStepWithRetry(ctx context.Context, containerID string, step domain.PlanStep, stepCtx Context, maxRetries int) (domain.StepExecutionResult, error) {
	var last domain.StepExecutionResult
	for attempt := 0; attempt <= maxRetries; attempt++ {
		result, err := e.Execute(ctx, containerID, step, stepCtx)
		if err != nil {
			return result, err
		}
		if result.Success {
			return result, nil
		}
		last = result
		if ctx.Err() != nil {
			return last, ctx.Err()
		}
	}
	return last, nil
}

// Rollback reverses the file changes recorded in failedResult, in declared
// order, per-type. Per-entry errors are logged and swallowed so the
// remaining entries still get a rollback attempt; only a failure in the
// outer setup or the change-log clear phase surfaces as a *RollbackError.
func (e *Executor) Rollback(ctx context.Context, containerID string, failedResult domain.StepExecutionResult) error {
	for _, change := range failedResult.Changes {
		if err := e.rollbackOne(ctx, containerID, change); err != nil {
			e.logger.ErrorContext(ctx, "rollback entry failed, continuing", "path", change.Path, "error", err)
		}
	}

	if err := e.editor.ClearChanges(); err != nil {
		return &RollbackError{cause: err}
	}
	return nil
}

func (e *Executor) rollbackOne(ctx context.Context, containerID string, change domain.FileChange) error {
	switch change.Type {
	case domain.FileCreated:
		if _, err := e.editor.ReadFile(ctx, containerID, change.Path); err != nil {
			return nil // already gone
		}
		return e.editor.DeleteFile(ctx, containerID, change.Path)

	case domain.FileModified:
		if change.OldContent == nil {
			return nil
		}
		old := *change.OldContent
		return e.editor.ModifyFile(ctx, containerID, change.Path, func(string) string { return old })

	case domain.FileDeleted:
		if change.OldContent == nil {
			return nil
		}
		return e.editor.CreateFile(ctx, containerID, change.Path, *change.OldContent)
	}
	return nil
}
