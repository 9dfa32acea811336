package config

import (
	"fmt"
	"time"

	"github.com/rezkam/agentforge/internal/env"
)

// WorkerConfig holds all configuration for the worker binary: the job
// fabric's tunables from spec.md section 6, plus the database and
// observability config every binary shares.
type WorkerConfig struct {
	Database      DatabaseConfig
	Observability ObservabilityConfig

	MaxQueueSize            int           `env:"AGENTFORGE_MAX_QUEUE_SIZE" default:"1000"`
	MaxConcurrency          int           `env:"AGENTFORGE_MAX_CONCURRENCY" default:"4"`
	EnablePrioritization    bool          `env:"AGENTFORGE_ENABLE_PRIORITIZATION" default:"false"`
	EnableRetry             bool          `env:"AGENTFORGE_ENABLE_RETRY" default:"true"`
	RetryDelayMilliseconds  int           `env:"AGENTFORGE_RETRY_DELAY_MS" default:"1000"`
	MaxRetryDelayMilliseconds int         `env:"AGENTFORGE_MAX_RETRY_DELAY_MS" default:"60000"`
	ShutdownTimeoutSeconds  int           `env:"AGENTFORGE_SHUTDOWN_TIMEOUT_SECONDS" default:"30"`
	BuildVerifyMaxRetries   int           `env:"AGENTFORGE_BUILD_MAX_RETRIES" default:"2"`
	TestValidateMaxRetries  int           `env:"AGENTFORGE_TEST_MAX_RETRIES" default:"2"`
	StepExecuteMaxRetries   int           `env:"AGENTFORGE_STEP_MAX_RETRIES" default:"1"`
	OperationTimeout        time.Duration `env:"AGENTFORGE_WORKER_OPERATION_TIMEOUT" default:"5m"`
}

// ShutdownTimeout returns ShutdownTimeoutSeconds as a time.Duration, the
// unit the JobProcessor actually wants.
func (c *WorkerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// RetryDelay returns RetryDelayMilliseconds as a time.Duration.
func (c *WorkerConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMilliseconds) * time.Millisecond
}

// MaxRetryDelay returns MaxRetryDelayMilliseconds as a time.Duration.
func (c *WorkerConfig) MaxRetryDelay() time.Duration {
	return time.Duration(c.MaxRetryDelayMilliseconds) * time.Millisecond
}

// LoadWorkerConfig loads and validates worker configuration from environment.
func LoadWorkerConfig() (*WorkerConfig, error) {
	cfg := &WorkerConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load worker config: %w", err)
	}

	return cfg, nil
}
