package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// SetupTelemetry configures OpenTelemetry for the engine. If cfg.OTLP.Host is set it
// takes precedence and traces are shipped via OTLP/HTTP; otherwise cfg.JaegerURL is
// used, and if neither is set telemetry is left disabled (a no-op tracer provider).
func SetupTelemetry(cfg Config) (*tracesdk.TracerProvider, error) {
	res, err := NewResource(cfg)
	if err != nil {
		return nil, err
	}

	var exp tracesdk.SpanExporter

	switch {
	case cfg.OTLP.Host != "":
		exp, err = NewOTLPExporter(cfg.OTLP)
	case cfg.JaegerURL != "":
		exp, err = NewJaegerExporter(cfg.JaegerURL)
	default:
		tp := tracesdk.NewTracerProvider(tracesdk.WithResource(res))
		otel.SetTracerProvider(tp)
		tracer = otel.Tracer(PACKAGE)

		return tp, nil
	}

	if err != nil {
		return nil, err
	}

	tp := NewTracerProvider(exp, res)

	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(PACKAGE)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// NewTracerProvider builds a trace provider that batches spans onto exp, tagged with
// res.
func NewTracerProvider(exp tracesdk.SpanExporter, res *resource.Resource) *tracesdk.TracerProvider {
	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)
}

// NewJaegerExporter creates an exporter that pushes spans to a Jaeger collector.
func NewJaegerExporter(url string) (*jaeger.Exporter, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, err
	}

	return exp, nil
}

// NewOTLPExporter creates an exporter that pushes spans over OTLP/HTTP to cfg.Host,
// honouring cfg.Secure to choose between HTTPS and plaintext HTTP.
func NewOTLPExporter(cfg OTLP) (*otlptrace.Exporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Host)}
	if !cfg.Secure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	client := otlptracehttp.NewClient(opts...)

	return otlptrace.New(context.Background(), client)
}

// NewResource builds the resource identifying this service instance: its package name
// plus either the configured id or a freshly generated random one.
func NewResource(cfg Config) (*resource.Resource, error) {
	id := cfg.ID
	if id == "" {
		generated, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}

		id = generated.String()
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(PACKAGE),
		attribute.String("ID", id),
	), nil
}
