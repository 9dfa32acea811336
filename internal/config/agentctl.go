package config

import (
	"fmt"

	"github.com/rezkam/agentforge/internal/env"
)

// AgentCtlConfig holds configuration for the agentctl operator CLI. It
// talks directly to the same database the worker process uses — no RPC
// layer, same precedent as the teacher's cmd/apikey talking straight to
// the store.
type AgentCtlConfig struct {
	Database DatabaseConfig
}

// LoadAgentCtlConfig loads and validates agentctl configuration from
// environment.
func LoadAgentCtlConfig() (*AgentCtlConfig, error) {
	cfg := &AgentCtlConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load agentctl config: %w", err)
	}

	return cfg, nil
}
