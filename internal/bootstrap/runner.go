package bootstrap

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"web-task-agent/internal/console"
	"web-task-agent/internal/ports"
)

// newRunner wires the one-shot run: the browser launches on start, the task
// runs in its own goroutine, and the console's exit code becomes the process
// exit code. An interrupt cancels the run context and still closes the
// browser on the way out.
func newRunner(task string) func(fx.Lifecycle, fx.Shutdowner, *console.Interface, ports.BrowserDriver, *sdktrace.TracerProvider, *zap.Logger) {
	return func(
		lc fx.Lifecycle,
		shutdowner fx.Shutdowner,
		consoleInterface *console.Interface,
		browser ports.BrowserDriver,
		_ *sdktrace.TracerProvider,
		logger *zap.Logger,
	) {
		runCtx, cancel := context.WithCancel(context.Background())

		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				logger.Info("Launching browser...")

				if err := browser.Launch(ctx); err != nil {
					logger.Error("Failed to launch browser", zap.Error(err))

					return err
				}

				logger.Info("Browser launched")

				go func() {
					code := consoleInterface.Run(runCtx, task)

					if err := shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
						logger.Error("Shutdown failed", zap.Error(err))
					}
				}()

				return nil
			},
			OnStop: func(ctx context.Context) error {
				cancel()

				if err := browser.Close(ctx); err != nil {
					logger.Error("Failed to close browser", zap.Error(err))
				}

				return nil
			},
		})
	}
}
