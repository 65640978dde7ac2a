package usecase

import (
	"web-task-agent/internal/usecase/adapters"
)

type serviceFactory struct {
	deps Params
}

func newServiceFactory(deps Params) *serviceFactory {
	return &serviceFactory{
		deps: deps,
	}
}

func (f *serviceFactory) CreateWorkflowService() adapters.WorkflowService {
	return NewWorkflowService(WorkflowServiceParams{
		Config:   f.deps.Config,
		Logger:   f.deps.Logger,
		Browser:  f.deps.Browser,
		Engine:   f.deps.Engine,
		Recorder: f.deps.Recorder,
	})
}

func (f *serviceFactory) CreateBrowserService() adapters.BrowserService {
	return f.deps.Browser
}

func (f *serviceFactory) CreateEngineService() adapters.EngineService {
	return f.deps.Engine
}
