// Package tracing wires OpenTelemetry spans around the fit pipeline:
// config load, chain building, kinematics preparation, and likelihood
// evaluations. Disabled by default; a no-op tracer costs nothing.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultServiceName = "pwfit"

// Config configures the tracing subsystem.
type Config struct {
	Enabled bool

	// Exporter selects the export backend: "none", "file", "stdout" or
	// "otlp". Default: "none".
	Exporter string

	// FilePath is the output file for the "file" exporter.
	FilePath string

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317".
	OTLPEndpoint string

	// SampleRate is the sampled fraction of traces; zero means all.
	SampleRate float64
}

// Provider owns the tracer provider and its exporter lifecycle.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
}

// NewProvider builds the provider; a disabled config yields a no-op tracer.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "file":
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file_path required for file exporter")
		}
		exporter, err = NewFileExporter(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("create file exporter: %w", err)
		}
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	case "otlp":
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
	case "none", "":
		exporter = nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.Exporter)
	}

	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}
	// NewSchemaless avoids schema version conflicts with resource.Default().
	res := resource.NewSchemaless(attribute.String("service.name", defaultServiceName))
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return &Provider{
		provider: provider,
		tracer:   provider.Tracer(defaultServiceName),
		enabled:  true,
	}, nil
}

// Tracer returns the configured tracer; safe to use when disabled.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Enabled reports whether spans are recorded.
func (p *Provider) Enabled() bool { return p.enabled }

// Shutdown flushes pending spans before exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}
