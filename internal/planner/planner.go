// Package planner implements GeneratePlanJobHandler's Planner collaborator
// (spec.md 4.8). Producing the plan's content requires an LLM call, and
// "generating LLM prompts" is an explicit spec Non-goal: LLMClient is the
// external collaborator, specified here only as an interface, the same
// treatment spec.md gives BuildVerifier and the container driver.
package planner

import (
	"context"
	"fmt"

	"github.com/rezkam/agentforge/internal/domain"
)

// LLMClient is the external planning collaborator. A real implementation
// calls out to whatever model provider generates the solution outline;
// this package only shapes its output into an AgentPlan.
type LLMClient interface {
	GeneratePlan(ctx context.Context, task domain.AgentTask) (domain.AgentPlan, error)
}

// Planner implements handlers.Planner on top of an LLMClient.
type Planner struct {
	client LLMClient
}

// New returns a Planner backed by client.
func New(client LLMClient) *Planner {
	return &Planner{client: client}
}

// Plan produces an AgentPlan for task.
func (p *Planner) Plan(ctx context.Context, task domain.AgentTask) (domain.AgentPlan, error) {
	plan, err := p.client.GeneratePlan(ctx, task)
	if err != nil {
		return domain.AgentPlan{}, fmt.Errorf("generate plan for %s: %w", task.ID, err)
	}
	return plan, nil
}
