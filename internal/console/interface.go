package console

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"web-task-agent/internal/config"
	"web-task-agent/internal/entity"
	"web-task-agent/internal/usecase"
	"web-task-agent/pkg/logg"
)

const separator = "───────────────────────────────────────────────────"

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

type Interface struct {
	config  *config.Config
	logger  *zap.Logger
	usecase *usecase.Service
}

type Params struct {
	fx.In

	Config  *config.Config
	Logger  *zap.Logger
	Usecase *usecase.Service
}

func NewInterface(params Params) *Interface {
	return &Interface{
		config:  params.Config,
		logger:  params.Logger.With(zap.String(logg.Layer, "Console")),
		usecase: params.Usecase,
	}
}

// Run executes a single task end to end and returns the process exit code.
// A run that stops on the step budget still counts as a clean exit; only
// errors map to a non-zero code.
func (i *Interface) Run(ctx context.Context, task string) int {
	i.printBanner()

	fmt.Println(separator)

	res, err := i.usecase.Workflow.Run(ctx, task)
	if err != nil {
		i.logger.Error("Task failed", zap.Error(err))

		fmt.Println(separator)
		fmt.Printf("❌ Task failed: %v\n", err)

		if res != nil {
			fmt.Printf("🗂  Artifacts: %s\n", res.Dir)
		}

		return ExitFailure
	}

	i.printOutcome(res)

	return ExitOK
}

func (i *Interface) printOutcome(res *entity.RunResult) {
	fmt.Println(separator)

	switch res.Status {
	case entity.RunStatusCompleted:
		fmt.Printf("✅ Task completed in %d steps\n", res.Summary.TotalSteps)
	case entity.RunStatusExhausted:
		fmt.Printf("⚠️  Stopped on the step budget after %d steps\n", res.Summary.TotalSteps)
	default:
		fmt.Printf("Run finished with status %s\n", res.Status)
	}

	fmt.Printf("🗂  Artifacts: %s\n", res.Dir)
	fmt.Printf("📄 Summary: %s\n", res.SummaryPath)
}

func (i *Interface) printBanner() {
	banner := `
╔═══════════════════════════════════════════════════╗
║                                                   ║
║            🤖  Web Task Agent  🌐                 ║
║                                                   ║
║   Grounded browser automation driven by an LLM    ║
║                                                   ║
╚═══════════════════════════════════════════════════╝
`
	fmt.Println(banner)
}
