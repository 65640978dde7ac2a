package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"web-task-agent/internal/config"
	"web-task-agent/internal/entity"
	"web-task-agent/internal/history"
	"web-task-agent/internal/ports"
	"web-task-agent/pkg/apperr"
	"web-task-agent/pkg/logg"
	"web-task-agent/pkg/tracing"
)

const (
	workflowServiceName = "WorkflowService"
	workflowTracer      = "usecase.workflow"

	initialStepReasoning = "Initial page load"
)

// WorkflowService drives one task from bootstrap to a terminal status. Each
// step observes the page, asks the engine for a decision, executes it and
// records the artifacts before the next observation.
type WorkflowService struct {
	config   *config.Config
	logger   *zap.Logger
	browser  ports.BrowserDriver
	engine   ports.DecisionEngine
	recorder *history.Recorder
	tracer   trace.Tracer
}

type WorkflowServiceParams struct {
	fx.In

	Config   *config.Config
	Logger   *zap.Logger
	Browser  ports.BrowserDriver
	Engine   ports.DecisionEngine
	Recorder *history.Recorder
}

func NewWorkflowService(params WorkflowServiceParams) *WorkflowService {
	return &WorkflowService{
		config:   params.Config,
		logger:   params.Logger.With(zap.String(logg.Layer, workflowServiceName)),
		browser:  params.Browser,
		engine:   params.Engine,
		recorder: params.Recorder,
		tracer:   otel.Tracer(workflowTracer),
	}
}

func (s *WorkflowService) Run(ctx context.Context, task string) (res *entity.RunResult, err error) {
	const op = "Run"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	if task == "" {
		return nil, apperr.InvalidReqError(op, "task", errors.New("task cannot be empty"))
	}

	if !s.browser.IsReady() {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeSessionInit, "browser_not_ready")
	}

	run, err := s.recorder.BeginRun(ctx, task)
	if err != nil {
		return nil, err
	}

	logger = logger.With(zap.String(logg.RunID, run.ID()))
	step.SetAttributes(tracing.RunAttr(run.ID()))

	fmt.Printf("📋 Task: %s\n", task)
	fmt.Printf("🗂  Artifacts: %s\n", run.Dir())

	startURL, err := s.engine.InitialURL(ctx, task)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	criterion, err := s.engine.EndState(ctx, task)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	logger.Info("Run bootstrapped", zap.String(logg.URL, startURL))
	step.AddEvent("run bootstrapped")

	fmt.Printf("🌐 Start URL: %s\n", startURL)
	fmt.Printf("🏁 End state: %s\n\n", criterion)

	if err = s.browser.Navigate(ctx, startURL); err != nil {
		return s.failRun(ctx, run, err)
	}

	state, err := s.observe(ctx)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	if _, err = run.RecordStep(ctx, 0, entity.NavigateAction{URL: startURL}, initialStepReasoning, state); err != nil {
		return s.failRun(ctx, run, err)
	}

	maxSteps := s.config.WorkflowConfig.MaxSteps
	completed := false

	for stepNumber := 1; stepNumber <= maxSteps; stepNumber++ {
		select {
		case <-ctx.Done():
			return s.failRun(ctx, run, apperr.Wrap(op, apperr.CodeInternal, ctx.Err(), map[string]any{
				apperr.MetaReason: "context_cancelled",
				apperr.MetaStep:   stepNumber,
			}))
		default:
		}

		fmt.Printf("🔄 Step %d/%d: ", stepNumber, maxSteps)

		decision, err := s.engine.Decide(ctx, &entity.DecisionRequest{
			Task:        task,
			Criterion:   criterion,
			Observation: state,
			History:     run.Summaries(),
		})
		if err != nil {
			return s.failRun(ctx, run, err)
		}

		fmt.Printf("%s\n", decision.Reasoning)

		action, err := s.resolveAction(decision, state)
		if err != nil {
			return s.failRun(ctx, run, err)
		}

		if action.Kind() != entity.ActionComplete {
			if action, err = s.act(ctx, action); err != nil {
				return s.failRun(ctx, run, err)
			}

			if state, err = s.observe(ctx); err != nil {
				return s.failRun(ctx, run, err)
			}
		}

		if _, err = run.RecordStep(ctx, stepNumber, action, decision.Reasoning, state); err != nil {
			return s.failRun(ctx, run, err)
		}

		fmt.Printf("🎬 %s\n\n", action.Describe())

		if action.Kind() == entity.ActionComplete || decision.Completed {
			completed = true
			step.AddEvent("end state reached")

			break
		}
	}

	status := entity.RunStatusCompleted

	if completed {
		fmt.Printf("✅ Task completed\n")
	} else {
		status = entity.RunStatusExhausted
		budgetErr := apperr.WrapErrorWithReason(op, apperr.CodeStepBudget, "max_steps_reached")
		logger.Warn("Step budget exhausted", zap.Int(logg.Step, maxSteps), zap.Error(budgetErr))

		fmt.Printf("⚠️  Step budget exhausted after %d steps\n", maxSteps)
	}

	summary, summaryPath, err := run.ExportSummary(ctx, status)
	if err != nil {
		return s.failRun(ctx, run, err)
	}

	logger.Info("Run finished",
		zap.String(logg.Path, summaryPath),
		zap.Int(logg.Count, summary.TotalSteps))
	step.AddEvent("summary exported")

	return &entity.RunResult{
		RunID:       run.ID(),
		Status:      status,
		Dir:         run.Dir(),
		SummaryPath: summaryPath,
		Summary:     summary,
	}, nil
}

// failRun closes out a run that cannot continue: it captures a last
// screenshot when the browser still answers, writes the failure artifact and
// a failed summary, and hands the original error back to the caller.
func (s *WorkflowService) failRun(ctx context.Context, run *history.Run, runErr error) (*entity.RunResult, error) {
	logger := s.logger.With(zap.String(logg.RunID, run.ID()))
	logger.Error("Run failed", zap.Error(runErr))

	fmt.Printf("\n❌ Run failed: %v\n", runErr)

	var screenshot []byte

	if s.browser.IsReady() {
		screenshot, _ = s.browser.Screenshot(ctx)
	}

	run.RecordFailure(runErr, screenshot)

	res := &entity.RunResult{
		RunID:  run.ID(),
		Status: entity.RunStatusFailed,
		Dir:    run.Dir(),
	}

	summary, summaryPath, err := run.ExportSummary(ctx, entity.RunStatusFailed)
	if err != nil {
		logger.Warn("Failed to export summary for failed run", zap.Error(err))

		return res, runErr
	}

	res.SummaryPath = summaryPath
	res.Summary = summary

	return res, runErr
}

var _ ports.WorkflowRunner = (*WorkflowService)(nil)
