package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rezkam/agentforge/internal/env"
)

// ErrWebhookSecretRequired is returned when no HMAC signing secret is
// configured; webhookd refuses to start without one since an unsigned
// ingress endpoint would accept forged task payloads.
var ErrWebhookSecretRequired = errors.New("AGENTFORGE_WEBHOOK_SECRET is required")

// WebhookConfig holds all configuration for the webhookd binary.
type WebhookConfig struct {
	Database      DatabaseConfig
	Observability ObservabilityConfig

	HTTPHost           string        `env:"AGENTFORGE_WEBHOOK_HTTP_HOST" default:"0.0.0.0"`
	HTTPPort           string        `env:"AGENTFORGE_WEBHOOK_HTTP_PORT" default:"8080"`
	ReadTimeout        time.Duration `env:"AGENTFORGE_WEBHOOK_READ_TIMEOUT" default:"5s"`
	WriteTimeout       time.Duration `env:"AGENTFORGE_WEBHOOK_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout        time.Duration `env:"AGENTFORGE_WEBHOOK_IDLE_TIMEOUT" default:"120s"`
	MaxBodyBytes       int64         `env:"AGENTFORGE_WEBHOOK_MAX_BODY_BYTES" default:"1048576"`
	Secret             string        `env:"AGENTFORGE_WEBHOOK_SECRET"`
	SignatureHeader    string        `env:"AGENTFORGE_WEBHOOK_SIGNATURE_HEADER" default:"X-Hub-Signature-256"`
}

// Validate validates webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.Secret == "" {
		return ErrWebhookSecretRequired
	}
	return nil
}

// LoadWebhookConfig loads and validates webhookd configuration from
// environment.
func LoadWebhookConfig() (*WebhookConfig, error) {
	cfg := &WebhookConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load webhook config: %w", err)
	}

	return cfg, nil
}
