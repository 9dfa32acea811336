package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rezkam/agentforge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	tasks map[string]domain.AgentTask
	saved []domain.AgentTask
}

func newFakeStore(tasks ...domain.AgentTask) *fakeStore {
	m := make(map[string]domain.AgentTask)
	for _, t := range tasks {
		m[t.ID] = t
	}
	return &fakeStore{tasks: m}
}

func (s *fakeStore) GetTask(ctx context.Context, taskID string) (domain.AgentTask, error) {
	t, ok := s.tasks[taskID]
	if !ok {
		return domain.AgentTask{}, domain.ErrTaskNotFound
	}
	return t, nil
}

func (s *fakeStore) SaveTask(ctx context.Context, task domain.AgentTask) error {
	s.tasks[task.ID] = task
	s.saved = append(s.saved, task)
	return nil
}

type fakePlanner struct {
	plan domain.AgentPlan
	err  error
}

func (p fakePlanner) Plan(ctx context.Context, task domain.AgentTask) (domain.AgentPlan, error) {
	return p.plan, p.err
}

type fakeDispatcher struct {
	dispatched []domain.Job
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, job domain.Job) bool {
	d.dispatched = append(d.dispatched, job)
	return true
}

type fakeExecutor struct {
	err error
}

func (e fakeExecutor) ExecutePlan(ctx context.Context, task domain.AgentTask) error {
	return e.err
}

func TestGeneratePlanJobHandler_Success(t *testing.T) {
	store := newFakeStore(domain.AgentTask{ID: "owner/repo/issues/1", Status: domain.TaskPendingPlanning})
	planner := fakePlanner{plan: domain.AgentPlan{ProblemSummary: "fix bug"}}
	dispatcher := &fakeDispatcher{}
	h := NewGeneratePlanJobHandler(store, planner, dispatcher)

	payload, _ := json.Marshal(taskPayload{TaskId: "owner/repo/issues/1"})
	result := h.Execute(context.Background(), domain.Job{Payload: payload})

	require.True(t, result.IsSuccess())
	require.Len(t, dispatcher.dispatched, 1)
	assert.Equal(t, ExecutePlanJobType, dispatcher.dispatched[0].Type)
	assert.Equal(t, domain.TaskPlanned, store.tasks["owner/repo/issues/1"].Status)
}

func TestGeneratePlanJobHandler_BadPayloadIsRetriable(t *testing.T) {
	h := NewGeneratePlanJobHandler(newFakeStore(), fakePlanner{}, &fakeDispatcher{})
	result := h.Execute(context.Background(), domain.Job{Payload: []byte("not json")})

	require.False(t, result.IsSuccess())
	assert.True(t, result.ShouldRetry())
}

func TestGeneratePlanJobHandler_PlannerErrorIsRetriable(t *testing.T) {
	store := newFakeStore(domain.AgentTask{ID: "t1"})
	h := NewGeneratePlanJobHandler(store, fakePlanner{err: errors.New("llm unavailable")}, &fakeDispatcher{})

	payload, _ := json.Marshal(taskPayload{TaskId: "t1"})
	result := h.Execute(context.Background(), domain.Job{Payload: payload})

	require.False(t, result.IsSuccess())
	assert.True(t, result.ShouldRetry())
}

func TestExecutePlanJobHandler_NoPlanIsNonRetriable(t *testing.T) {
	store := newFakeStore(domain.AgentTask{ID: "t1", Plan: nil})
	h := NewExecutePlanJobHandler(store, fakeExecutor{})

	payload, _ := json.Marshal(taskPayload{TaskId: "t1"})
	result := h.Execute(context.Background(), domain.Job{Payload: payload})

	require.False(t, result.IsSuccess())
	assert.False(t, result.ShouldRetry())
}

func TestExecutePlanJobHandler_TaskNotFoundIsNonRetriable(t *testing.T) {
	h := NewExecutePlanJobHandler(newFakeStore(), fakeExecutor{})

	payload, _ := json.Marshal(taskPayload{TaskId: "missing"})
	result := h.Execute(context.Background(), domain.Job{Payload: payload})

	require.False(t, result.IsSuccess())
	assert.False(t, result.ShouldRetry())
}

func TestExecutePlanJobHandler_SuccessMarksTaskCompleted(t *testing.T) {
	plan := domain.AgentPlan{}
	store := newFakeStore(domain.AgentTask{ID: "t1", Plan: &plan})
	h := NewExecutePlanJobHandler(store, fakeExecutor{})

	payload, _ := json.Marshal(taskPayload{TaskId: "t1"})
	result := h.Execute(context.Background(), domain.Job{Payload: payload})

	require.True(t, result.IsSuccess())
	assert.Equal(t, domain.TaskCompleted, store.tasks["t1"].Status)
}

func TestExecutePlanJobHandler_ExecutorErrorIsRetriable(t *testing.T) {
	plan := domain.AgentPlan{}
	store := newFakeStore(domain.AgentTask{ID: "t1", Plan: &plan})
	h := NewExecutePlanJobHandler(store, fakeExecutor{err: errors.New("sandbox crashed")})

	payload, _ := json.Marshal(taskPayload{TaskId: "t1"})
	result := h.Execute(context.Background(), domain.Job{Payload: payload})

	require.False(t, result.IsSuccess())
	assert.True(t, result.ShouldRetry())
}

func TestExecutePlanJobHandler_CancellationNotRetriable(t *testing.T) {
	plan := domain.AgentPlan{}
	store := newFakeStore(domain.AgentTask{ID: "t1", Plan: &plan})
	h := NewExecutePlanJobHandler(store, fakeExecutor{err: context.Canceled})

	payload, _ := json.Marshal(taskPayload{TaskId: "t1"})
	result := h.Execute(context.Background(), domain.Job{Payload: payload})

	require.False(t, result.IsSuccess())
	assert.False(t, result.ShouldRetry())
}
