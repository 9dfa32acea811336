// Command worker runs the JobProcessor against the GeneratePlan/ExecutePlan
// job types: it dequeues jobs from its own in-process queue and drives
// them through the step executor until a pull request's worth of
// changes exists or the task fails.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rezkam/agentforge/internal/artifacts"
	"github.com/rezkam/agentforge/internal/config"
	"github.com/rezkam/agentforge/internal/dedup"
	"github.com/rezkam/agentforge/internal/dispatch"
	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/handlers"
	"github.com/rezkam/agentforge/internal/jobqueue"
	"github.com/rezkam/agentforge/internal/jobstatus"
	"github.com/rezkam/agentforge/internal/jobstatus/sqlstore"
	"github.com/rezkam/agentforge/internal/observability"
	"github.com/rezkam/agentforge/internal/orchestrator"
	"github.com/rezkam/agentforge/internal/planner"
	"github.com/rezkam/agentforge/internal/processor"
	"github.com/rezkam/agentforge/internal/retry"
	"github.com/rezkam/agentforge/internal/sandbox"
	"github.com/rezkam/agentforge/internal/step"
	"github.com/rezkam/agentforge/internal/taskstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("load worker config: %v", err)
	}

	providers, err := observability.Setup(ctx, "agentforge-worker", cfg.Observability)
	if err != nil {
		log.Fatalf("setup observability: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			slog.Error("observability shutdown failed", "error", err)
		}
	}()

	logger := providers.Logger
	slog.SetDefault(logger)

	statusStore, dedupIndex, err := newDurableBackends(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("setup durable backends: %v", err)
	}

	queueMode := jobqueue.FIFO
	if cfg.EnablePrioritization {
		queueMode = jobqueue.Priority
	}
	queue := jobqueue.New(queueMode, cfg.MaxQueueSize)

	dispatcher := dispatch.New(queue, statusStore, dedupIndex)

	artifactStore, err := newArtifactStore()
	if err != nil {
		log.Fatalf("setup artifact store: %v", err)
	}

	stepExecutor := step.New(
		unimplementedAnalyzer{},
		unimplementedCodegen{},
		unimplementedEditor{},
		unimplementedBuilder{},
		unimplementedTester{},
		unimplementedQuality{},
		cfg.BuildVerifyMaxRetries,
		cfg.TestValidateMaxRetries,
		logger,
	)

	sandboxBaseDir := os.TempDir()
	orch := orchestrator.New(
		stepExecutor,
		&sandbox.LocalProvisioner{BaseDir: sandboxBaseDir},
		&sandbox.LocalContextBuilder{Default: step.Context{Language: "go", BuildTool: "go build"}},
		artifactStore,
		cfg.StepExecuteMaxRetries,
		logger,
	)

	tasks := taskstore.NewMemoryStore()
	taskPlanner := planner.New(unimplementedLLMClient{})

	dispatcher.RegisterHandler(handlers.NewGeneratePlanJobHandler(tasks, taskPlanner, dispatcher))
	dispatcher.RegisterHandler(handlers.NewExecutePlanJobHandler(tasks, orch))

	retryPolicy := retry.Policy{
		Enabled:   cfg.EnableRetry,
		BaseDelay: cfg.RetryDelay(),
		MaxDelay:  cfg.MaxRetryDelay(),
	}

	proc := processor.New(queue, dispatcher, statusStore, processor.Config{
		MaxConcurrency:  cfg.MaxConcurrency,
		RetryPolicy:     retryPolicy,
		ShutdownTimeout: cfg.ShutdownTimeout(),
		Logger:          logger,
		Meter:           providers.ProcessorMeter,
	})

	logger.InfoContext(ctx, "worker started",
		"max_concurrency", cfg.MaxConcurrency,
		"max_queue_size", cfg.MaxQueueSize,
		"prioritization", cfg.EnablePrioritization,
		"retry_enabled", cfg.EnableRetry,
	)

	if err := proc.Run(ctx); err != nil {
		logger.ErrorContext(ctx, "processor exited with error", "error", err)
		os.Exit(1)
	}

	logger.InfoContext(ctx, "worker stopped")
}

// newDurableBackends opens the SQL-backed JobStatusStore/DeduplicationIndex
// when AGENTFORGE_DB_DRIVER/DSN point at a real database, falling back to
// the in-memory defaults (spec.md 4.5/4.6) when AGENTFORGE_DB_DSN is
// cleared to ":memory:-less" empty string for local development.
func newDurableBackends(ctx context.Context, dbCfg config.DatabaseConfig) (jobstatus.Store, dispatch.Dedup, error) {
	if dbCfg.DSN == "" {
		return jobstatus.NewMemoryStore(), dedup.New(), nil
	}

	driver := sqlstore.DriverSQLite
	if dbCfg.Driver == "postgres" {
		driver = sqlstore.DriverPostgres
	}

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver:          driver,
		DSN:             dbCfg.DSN,
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		ConnMaxIdleTime: dbCfg.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}

	return sqlstore.NewStore(db, driver), sqlstore.NewDedup(db, driver), nil
}

// newArtifactStore wires a filesystem-backed artifact store by default.
// Set AGENTFORGE_ARTIFACTS_BUCKET to switch to GCS.
func newArtifactStore() (artifacts.Store, error) {
	if bucket := os.Getenv("AGENTFORGE_ARTIFACTS_BUCKET"); bucket != "" {
		return artifacts.NewGCSStore(context.Background(), bucket)
	}
	return artifacts.NewFSStore(os.TempDir() + "/agentforge-artifacts")
}

// unimplementedLLMClient satisfies planner.LLMClient with an empty plan so
// the fabric is exercisable end-to-end without a real model provider
// wired in. TODO: replace with a real LLM planning client.
type unimplementedLLMClient struct{}

func (unimplementedLLMClient) GeneratePlan(ctx context.Context, task domain.AgentTask) (domain.AgentPlan, error) {
	return domain.AgentPlan{ProblemSummary: "no planner configured"}, nil
}

// The step.StepAnalyzer/CodeGenerator/FileEditor/BuildVerifier/TestValidator
// pairing is, like LLMClient above, an external collaborator spec.md scopes
// out ("generating LLM prompts", "choosing a specific container runtime").
// These stand-ins let step.Executor be constructed and exercised by tests
// and by the orchestrator's wiring without a real model or sandboxed
// toolchain behind them. TODO: replace with real LLM-backed and
// container-backed implementations.
type unimplementedAnalyzer struct{}

func (unimplementedAnalyzer) Analyze(ctx context.Context, s domain.PlanStep, stepCtx step.Context) (domain.StepActionPlan, error) {
	return domain.StepActionPlan{}, fmt.Errorf("analyze step %s: no analyzer configured", s.ID)
}

type unimplementedCodegen struct{}

func (unimplementedCodegen) Generate(ctx context.Context, req domain.CodeGenerationRequest, priorContent *string) (string, error) {
	return "", fmt.Errorf("generate content: no code generator configured")
}

type unimplementedEditor struct{}

func (unimplementedEditor) CreateFile(ctx context.Context, containerID, path, content string) error {
	return fmt.Errorf("create %s: no file editor configured", path)
}

func (unimplementedEditor) ModifyFile(ctx context.Context, containerID, path string, transform func(string) string) error {
	return fmt.Errorf("modify %s: no file editor configured", path)
}

func (unimplementedEditor) DeleteFile(ctx context.Context, containerID, path string) error {
	return fmt.Errorf("delete %s: no file editor configured", path)
}

func (unimplementedEditor) ReadFile(ctx context.Context, containerID, path string) (string, error) {
	return "", fmt.Errorf("read %s: no file editor configured", path)
}

func (unimplementedEditor) GetChanges() []domain.FileChange { return nil }
func (unimplementedEditor) ClearChanges() error             { return nil }

type unimplementedBuilder struct{}

func (unimplementedBuilder) VerifyBuild(ctx context.Context, containerID string, maxRetries int) (domain.BuildResult, error) {
	return domain.BuildResult{}, fmt.Errorf("verify build in %s: no build verifier configured", containerID)
}

type unimplementedTester struct{}

func (unimplementedTester) RunAndValidate(ctx context.Context, containerID string, maxRetries int) (domain.TestValidationResult, error) {
	return domain.TestValidationResult{}, fmt.Errorf("run tests in %s: no test validator configured", containerID)
}

type unimplementedQuality struct{}

func (unimplementedQuality) CheckAndFix(ctx context.Context, containerID string) error { return nil }
