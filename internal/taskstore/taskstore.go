// Package taskstore holds AgentTask/AgentPlan records, the state
// GeneratePlanJobHandler and ExecutePlanJobHandler read and write between
// job runs. It follows the same narrow-interface, in-memory-default shape
// as internal/jobstatus: a Store interface handlers depend on, with a
// concurrent-safe MemoryStore as the default implementation.
package taskstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/rezkam/agentforge/internal/domain"
)

// Store is the interface handlers.TaskStore is satisfied by.
type Store interface {
	GetTask(ctx context.Context, taskID string) (domain.AgentTask, error)
	SaveTask(ctx context.Context, task domain.AgentTask) error
}

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]domain.AgentTask
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]domain.AgentTask)}
}

// GetTask returns the task for taskID, or domain.ErrTaskNotFound.
func (s *MemoryStore) GetTask(ctx context.Context, taskID string) (domain.AgentTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return domain.AgentTask{}, fmt.Errorf("task %s: %w", taskID, domain.ErrTaskNotFound)
	}
	return task, nil
}

// SaveTask upserts task.
func (s *MemoryStore) SaveTask(ctx context.Context, task domain.AgentTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task
	return nil
}
