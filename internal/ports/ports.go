package ports

import (
	"context"

	"web-task-agent/internal/entity"
)

// BrowserDriver is the single browser session the workflow runs against.
// Implementations execute actions strictly one at a time.
type BrowserDriver interface {
	Launch(ctx context.Context) error
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	QueryInteractiveElements(ctx context.Context) ([]entity.InteractiveElement, error)
	ResolveAndClick(ctx context.Context, selector string, target *entity.BoundingBox) (entity.ClickPoint, error)
	Fill(ctx context.Context, selector string, text string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	IsReady() bool
}

// DecisionEngine is the external model that plans the run and picks the next
// action for each observation.
type DecisionEngine interface {
	InitialURL(ctx context.Context, task string) (string, error)
	EndState(ctx context.Context, task string) (string, error)
	Decide(ctx context.Context, req *entity.DecisionRequest) (*entity.Decision, error)
}

type WorkflowRunner interface {
	Run(ctx context.Context, task string) (*entity.RunResult, error)
}
