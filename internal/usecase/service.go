package usecase

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"web-task-agent/internal/config"
	"web-task-agent/internal/history"
	"web-task-agent/internal/ports"
	"web-task-agent/internal/usecase/adapters"
)

type Service struct {
	Workflow adapters.WorkflowService
	Browser  adapters.BrowserService
	Engine   adapters.EngineService
}

type Params struct {
	fx.In

	Logger   *zap.Logger
	Config   *config.Config
	Browser  ports.BrowserDriver
	Engine   ports.DecisionEngine
	Recorder *history.Recorder
}

func NewUsecase(params Params) *Service {
	factory := newServiceFactory(params)

	return &Service{
		Workflow: factory.CreateWorkflowService(),
		Browser:  factory.CreateBrowserService(),
		Engine:   factory.CreateEngineService(),
	}
}
