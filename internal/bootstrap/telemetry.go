package bootstrap

import (
	"context"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"web-task-agent/internal/config"
)

// newTraceProvider exports spans as JSON lines into a file, so traces never
// interleave with the console output the agent narrates its run on. The file
// defaults to traces.jsonl under the artifact root.
func newTraceProvider(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) *sdktrace.TracerProvider {
	tracePath := cfg.AppConfig.TraceFile
	if tracePath == "" {
		tracePath = filepath.Join(cfg.WorkflowConfig.ArtifactRoot, "traces.jsonl")
	}

	if err := os.MkdirAll(filepath.Dir(tracePath), 0755); err != nil {
		logger.Fatal("Failed to create trace directory", zap.Error(err))
	}

	traceFile, err := os.OpenFile(tracePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logger.Fatal("Failed to open trace file", zap.Error(err))
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(traceFile),
	)
	if err != nil {
		logger.Fatal("Failed to create trace exporter", zap.Error(err))
	}

	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName("web-task-agent"),
		),
	)
	if err != nil {
		logger.Fatal("Failed to create resource", zap.Error(err))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := tp.Shutdown(ctx); err != nil {
				return err
			}

			return traceFile.Close()
		},
	})

	return tp
}
