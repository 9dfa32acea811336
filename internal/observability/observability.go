// Package observability wires the OTLP trace/metric/log pipeline shared by
// every binary in the fabric. It adapts the teacher's
// pkg/observability/otel.go three separate Init* functions into one
// Setup/Shutdown pair so cmd/worker and cmd/webhookd don't each reimplement
// provider lifecycle management.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/rezkam/agentforge/internal/config"
	"github.com/rezkam/agentforge/internal/processor"
)

// Providers bundles every OTel provider a binary needs to shut down
// cleanly, plus the structured logger instrumented code should actually
// use.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Logger         *slog.Logger
	ProcessorMeter processor.Meter
}

// Shutdown flushes and closes every provider, collecting every error
// rather than stopping at the first.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		errs = append(errs, p.TracerProvider.Shutdown(ctx))
	}
	if p.MeterProvider != nil {
		errs = append(errs, p.MeterProvider.Shutdown(ctx))
	}
	if p.LoggerProvider != nil {
		errs = append(errs, p.LoggerProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Setup initializes tracing, metrics and logging for serviceName according
// to cfg. When cfg.OTelEnabled is false, every provider is a no-op and
// Logger writes JSON to stdout — the same degraded-but-functional mode the
// teacher's Init* functions fall back to.
func Setup(ctx context.Context, serviceName string, cfg config.ObservabilityConfig) (*Providers, error) {
	tp, err := initTracerProvider(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("init tracer provider: %w", err)
	}

	mp, err := initMeterProvider(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("init meter provider: %w", err)
	}

	lp, logger, err := initLogger(ctx, serviceName, cfg.OTelEnabled)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	procMeter, err := newProcessorMeter(mp)
	if err != nil {
		return nil, fmt.Errorf("init processor instruments: %w", err)
	}

	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		Logger:         logger,
		ProcessorMeter: procMeter,
	}, nil
}

// newProcessorMeter wires the agentforge.job.attempts counter and
// agentforge.job.duration_seconds histogram the JobProcessor reports through, behind
// the narrow processor.Meter func-field struct so internal/processor never
// imports go.opentelemetry.io/otel directly.
func newProcessorMeter(mp *sdkmetric.MeterProvider) (processor.Meter, error) {
	meter := mp.Meter("agentforge/processor")

	attempts, err := meter.Int64Counter("agentforge.job.attempts",
		metric.WithDescription("job execution attempts by outcome"))
	if err != nil {
		return processor.Meter{}, err
	}

	duration, err := meter.Float64Histogram("agentforge.job.duration_seconds",
		metric.WithDescription("job execution duration in seconds"))
	if err != nil {
		return processor.Meter{}, err
	}

	return processor.Meter{
		RecordAttempt: func(ctx context.Context, jobType, outcome string) {
			attempts.Add(ctx, 1, metric.WithAttributes(
				attribute.String("job_type", jobType),
				attribute.String("outcome", outcome),
			))
		},
		RecordDuration: func(ctx context.Context, jobType string, d time.Duration) {
			duration.Record(ctx, d.Seconds(), metric.WithAttributes(
				attribute.String("job_type", jobType),
			))
		},
	}, nil
}

// parseOTLPHeaders parses OTEL_EXPORTER_OTLP_HEADERS and URL-decodes
// values; some OTLP backends provide headers URL-encoded and the SDK
// doesn't always decode them.
func parseOTLPHeaders() map[string]string {
	raw := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")
	if raw == "" {
		return nil
	}

	headers := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			key := strings.TrimSpace(kv[0])
			value, err := url.QueryUnescape(kv[1])
			if err != nil {
				value = kv[1]
			}
			headers[key] = value
		}
	}
	return headers
}

func newResource(ctx context.Context, serviceName, serviceVersion string) (*resource.Resource, error) {
	serviceResource, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithSchemaURL(semconv.SchemaURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create service resource: %w", err)
	}

	res, err := resource.Merge(resource.Default(), serviceResource)
	if err != nil {
		if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
			return res, nil
		}
		return nil, fmt.Errorf("merge resources: %w", err)
	}
	return res, nil
}

func initTracerProvider(ctx context.Context, serviceName string, enabled bool) (*sdktrace.TracerProvider, error) {
	if !enabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	res, err := newResource(ctx, serviceName, "1.0.0")
	if err != nil {
		return nil, err
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithTimeout(10 * time.Second)}
	if headers := parseOTLPHeaders(); headers != nil {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}

	traceExporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp, nil
}

func initMeterProvider(ctx context.Context, serviceName string, enabled bool) (*sdkmetric.MeterProvider, error) {
	if !enabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		return mp, nil
	}

	res, err := newResource(ctx, serviceName, "1.0.0")
	if err != nil {
		return nil, err
	}

	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithTimeout(10 * time.Second)}
	if headers := parseOTLPHeaders(); headers != nil {
		opts = append(opts, otlpmetrichttp.WithHeaders(headers))
	}

	metricExporter, err := otlpmetrichttp.New(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

func initLogger(ctx context.Context, serviceName string, enabled bool) (*sdklog.LoggerProvider, *slog.Logger, error) {
	if !enabled {
		return sdklog.NewLoggerProvider(), slog.New(slog.NewJSONHandler(os.Stdout, nil)), nil
	}

	res, err := newResource(ctx, serviceName, "1.0.0")
	if err != nil {
		return nil, nil, err
	}

	opts := []otlploghttp.Option{otlploghttp.WithTimeout(10 * time.Second)}
	if headers := parseOTLPHeaders(); headers != nil {
		opts = append(opts, otlploghttp.WithHeaders(headers))
	}

	logExporter, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create log exporter: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter, sdklog.WithExportTimeout(5*time.Second))),
		sdklog.WithResource(res),
	)
	logger := otelslog.NewLogger(serviceName, otelslog.WithLoggerProvider(lp))
	return lp, logger, nil
}
