// Package telemetry wires up the process's structured logger and tracer.
// Logging follows cmd/boxed-server/main.go's console-writer-in-dev /
// JSON-in-prod split; tracing is adapted from
// agentoven-agentoven/control-plane/internal/telemetry, simplified from an
// OTLP-gRPC exporter to a stdout exporter suitable for a batch sandbox
// service with no collector to talk to.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "sandboxd"

// InitLogging configures the global zerolog logger: pretty console output
// in development, structured JSON when environment is "production".
// environment is normally internal/config.Config.Environment.
func InitLogging(verbose bool, environment string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if environment != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// InitTracing installs a stdout-exporting OpenTelemetry tracer provider and
// returns a shutdown function the caller must invoke before exit. Tracing
// is always enabled (there is no external collector endpoint to make it
// conditional on); spans are pretty-printed to out, which cmd/sandboxd
// sets to os.Stderr.
func InitTracing(ctx context.Context, out *os.File) (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(out),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: create stdout exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// Tracer returns the orchestrator's named tracer, for wrapping stage
// transitions in spans.
func Tracer() trace.Tracer {
	return otel.Tracer("github.com/akshayaggarwal99/sandboxd/internal/orchestrator")
}
