package orchestrator

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/step"
)

type fakeProvisioner struct {
	containerID string
	released    bool
	err         error
}

func (p *fakeProvisioner) Provision(ctx context.Context, task domain.AgentTask) (string, func(), error) {
	if p.err != nil {
		return "", func() {}, p.err
	}
	return p.containerID, func() { p.released = true }, nil
}

type fakeContextBuilder struct {
	ctx step.Context
	err error
}

func (b *fakeContextBuilder) BuildContext(ctx context.Context, containerID string, task domain.AgentTask) (step.Context, error) {
	return b.ctx, b.err
}

type fakeArtifactStore struct {
	puts map[string]string
}

func (a *fakeArtifactStore) Put(ctx context.Context, key string, r io.Reader) error {
	if a.puts == nil {
		a.puts = make(map[string]string)
	}
	data, _ := io.ReadAll(r)
	a.puts[key] = string(data)
	return nil
}

// noopAnalyzer/noopEditor etc. reuse the minimal step.Executor fakes
// inline since step's own test fakes are unexported to that package.
type noopAnalyzer struct{ fail bool }

func (a noopAnalyzer) Analyze(ctx context.Context, step domain.PlanStep, stepCtx step.Context) (domain.StepActionPlan, error) {
	if a.fail {
		return domain.StepActionPlan{}, errors.New("analysis failed")
	}
	return domain.StepActionPlan{}, nil
}

type noopEditor struct{}

func (noopEditor) CreateFile(ctx context.Context, containerID, path, content string) error {
	return nil
}
func (noopEditor) ModifyFile(ctx context.Context, containerID, path string, transform func(string) string) error {
	return nil
}
func (noopEditor) DeleteFile(ctx context.Context, containerID, path string) error { return nil }
func (noopEditor) ReadFile(ctx context.Context, containerID, path string) (string, error) {
	return "", errors.New("not found")
}
func (noopEditor) GetChanges() []domain.FileChange { return nil }
func (noopEditor) ClearChanges() error              { return nil }

type noopCodegen struct{}

func (noopCodegen) Generate(ctx context.Context, req domain.CodeGenerationRequest, priorContent *string) (string, error) {
	return "", nil
}

type noopBuilder struct{ success bool }

func (b noopBuilder) VerifyBuild(ctx context.Context, containerID string, maxRetries int) (domain.BuildResult, error) {
	return domain.BuildResult{Success: b.success, Attempts: 1}, nil
}

type noopTester struct{}

func (noopTester) RunAndValidate(ctx context.Context, containerID string, maxRetries int) (domain.TestValidationResult, error) {
	return domain.TestValidationResult{AllPassed: true}, nil
}

type noopQuality struct{}

func (noopQuality) CheckAndFix(ctx context.Context, containerID string) error { return nil }

func newStepExecutor(buildSuccess bool) *step.Executor {
	return step.New(noopAnalyzer{}, noopCodegen{}, noopEditor{}, noopBuilder{success: buildSuccess}, noopTester{}, noopQuality{}, 1, 1, nil)
}

func TestOrchestrator_ExecutePlanMarksAllStepsDoneOnSuccess(t *testing.T) {
	steps := newStepExecutor(true)
	artifactStore := &fakeArtifactStore{}
	o := New(steps, &fakeProvisioner{containerID: "c1"}, &fakeContextBuilder{}, artifactStore, 1, nil)

	task := domain.AgentTask{
		ID: "acme/widgets/issues/1",
		Plan: &domain.AgentPlan{
			Steps: []domain.PlanStep{{ID: "s1"}, {ID: "s2"}},
		},
	}

	err := o.ExecutePlan(context.Background(), task)
	require.NoError(t, err)
	assert.True(t, task.Plan.Steps[0].Done)
	assert.True(t, task.Plan.Steps[1].Done)
	// one step.log and one metrics.json per step
	assert.Len(t, artifactStore.puts, 4)
	assert.Contains(t, artifactStore.puts, "acme/widgets/issues/1/s1/metrics.json")
}

func TestOrchestrator_ExecutePlanSkipsAlreadyDoneSteps(t *testing.T) {
	steps := newStepExecutor(true)
	o := New(steps, &fakeProvisioner{containerID: "c1"}, &fakeContextBuilder{}, nil, 1, nil)

	task := domain.AgentTask{
		ID: "t1",
		Plan: &domain.AgentPlan{
			Steps: []domain.PlanStep{{ID: "s1", Done: true}, {ID: "s2"}},
		},
	}

	require.NoError(t, o.ExecutePlan(context.Background(), task))
	assert.True(t, task.Plan.Steps[1].Done)
}

func TestOrchestrator_ExecutePlanReturnsErrorOnBuildFailure(t *testing.T) {
	steps := newStepExecutor(false)
	o := New(steps, &fakeProvisioner{containerID: "c1"}, &fakeContextBuilder{}, nil, 1, nil)

	task := domain.AgentTask{
		ID:   "t1",
		Plan: &domain.AgentPlan{Steps: []domain.PlanStep{{ID: "s1"}}},
	}

	err := o.ExecutePlan(context.Background(), task)
	assert.Error(t, err)
	assert.False(t, task.Plan.Steps[0].Done)
}

func TestOrchestrator_ExecutePlanPropagatesProvisionError(t *testing.T) {
	steps := newStepExecutor(true)
	provisionErr := errors.New("no capacity")
	o := New(steps, &fakeProvisioner{err: provisionErr}, &fakeContextBuilder{}, nil, 1, nil)

	err := o.ExecutePlan(context.Background(), domain.AgentTask{ID: "t1", Plan: &domain.AgentPlan{}})
	assert.ErrorIs(t, err, provisionErr)
}

func TestOrchestrator_ExecutePlanPropagatesCancellation(t *testing.T) {
	steps := newStepExecutor(true)
	o := New(steps, &fakeProvisioner{containerID: "c1"}, &fakeContextBuilder{}, nil, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := domain.AgentTask{
		ID:   "t1",
		Plan: &domain.AgentPlan{Steps: []domain.PlanStep{{ID: "s1"}}},
	}

	err := o.ExecutePlan(ctx, task)
	assert.ErrorIs(t, err, context.Canceled)
}
