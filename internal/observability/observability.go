package observability

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// tracerName names the tracer behind the orchestrator's per-tick spans; see
// Tracer().
const tracerName = "paperengine"

// Tracer returns the process-wide tracer registered by SetupOTelSDK.
func Tracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// SetupOTelSDK bootstraps the OpenTelemetry pipeline: a stdout span
// exporter batched through an SDK TracerProvider, registered as the global
// tracer provider for the process.
func SetupOTelSDK(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				log.Printf("Error shutting down: %v", err)
			}
		}
		shutdownFuncs = nil
		return nil
	}

	handleErr := func(inErr error) {
		err = inErr
		if err != nil {
			shutdown(ctx)
		}
	}

	// Set up trace exporter
	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		handleErr(err)
		return
	}

	// Set up trace provider
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(tracerName),
		),
	)
	if err != nil {
		handleErr(err)
		return
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)

	return
}
