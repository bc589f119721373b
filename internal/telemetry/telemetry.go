// Package telemetry sets up OpenTelemetry tracing for the server.
package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// Tracing holds the tracer provider and its shutdown hook.
type Tracing struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(context.Context) error
}

// Setup creates a TracerProvider exporting over OTLP/gRPC to endpoint and
// installs it globally. With an empty endpoint spans are recorded nowhere
// and Shutdown is a no-op.
//
// endpoint may be host:port or a URL; only its host is dialed, and plaintext
// is used unless the scheme is https.
func Setup(ctx context.Context, endpoint, serviceName string) (*Tracing, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return &Tracing{TracerProvider: tp, Shutdown: func(context.Context) error { return nil }}, nil
	}

	target, insecure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return &Tracing{TracerProvider: tp, Shutdown: tp.Shutdown}, nil
}

func parseEndpoint(endpoint string) (target string, insecure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme != "https", nil
}
