package domain

import "errors"

var (
	// ErrTaskNotFound indicates the requested AgentTask does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPlanNotFound indicates an AgentTask has no associated AgentPlan yet.
	ErrPlanNotFound = errors.New("task has no plan")
)
