package bootstrap

import (
	"time"

	"go.uber.org/fx"

	"web-task-agent/internal/ai"
	"web-task-agent/internal/browser"
	"web-task-agent/internal/config"
	"web-task-agent/internal/console"
	"web-task-agent/internal/history"
	"web-task-agent/internal/ports"
	"web-task-agent/internal/usecase"
)

func NewApp(task string) *fx.App {
	return fx.New(
		fx.Provide(
			config.GetConfig,
			newLogger,
			newTraceProvider,

			fx.Annotate(browser.NewDriver, fx.As(new(ports.BrowserDriver))),
			ai.NewEngine,
			history.NewRecorder,

			usecase.NewUsecase,

			console.NewInterface,
		),

		fx.Invoke(
			newRunner(task),
		),

		// First launch may download browser binaries, so startup gets a
		// generous budget.
		fx.StartTimeout(2*time.Minute),
	)
}
