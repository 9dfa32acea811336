// Package sandbox provides a local-filesystem stand-in for the container
// collaborator spec.md treats as contract-only ("choosing a specific
// container runtime" is an explicit Non-goal). LocalProvisioner and
// LocalContextBuilder let cmd/worker run end-to-end against a plain temp
// directory during local development; a production deployment swaps
// these for a real container driver behind the same
// orchestrator.ContainerProvisioner / orchestrator.StepContextBuilder
// interfaces.
package sandbox

import (
	"context"
	"fmt"
	"os"

	"github.com/rezkam/agentforge/internal/domain"
	"github.com/rezkam/agentforge/internal/step"
)

// LocalProvisioner "provisions" a container by creating a temp directory
// named after the task, used as the containerID by every downstream
// collaborator that takes one.
type LocalProvisioner struct {
	BaseDir string
}

// Provision creates a fresh working directory for task.
func (p *LocalProvisioner) Provision(ctx context.Context, task domain.AgentTask) (string, func(), error) {
	dir, err := os.MkdirTemp(p.BaseDir, fmt.Sprintf("agentforge-%s-*", sanitize(task.ID)))
	if err != nil {
		return "", nil, fmt.Errorf("create sandbox directory: %w", err)
	}
	release := func() {
		_ = os.RemoveAll(dir)
	}
	return dir, release, nil
}

func sanitize(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == '/' || c == '\\' {
			out[i] = '-'
			continue
		}
		out[i] = c
	}
	return string(out)
}

// LocalContextBuilder returns a fixed step.Context. Real toolchain
// detection (language, build tool, test framework) belongs to the
// production container driver this stands in for.
type LocalContextBuilder struct {
	Default step.Context
}

// BuildContext returns the configured default context unchanged.
func (b *LocalContextBuilder) BuildContext(ctx context.Context, containerID string, task domain.AgentTask) (step.Context, error) {
	return b.Default, nil
}
