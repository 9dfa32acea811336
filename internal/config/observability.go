package config

// ObservabilityConfig holds the OTLP exporter settings shared by every
// binary. Disabled by default; the worker and webhookd binaries wire a
// no-op provider when OTelEnabled is false.
type ObservabilityConfig struct {
	OTelEnabled     bool   `env:"AGENTFORGE_OTEL_ENABLED" default:"false"`
	ServiceName     string `env:"OTEL_SERVICE_NAME" default:"agentforge"`
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders     string `env:"OTEL_EXPORTER_OTLP_HEADERS"`
}
