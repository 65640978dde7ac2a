// Package history persists the artifact trail of a run: one directory per
// run holding per-step observation records, element snapshots, screenshots,
// the run summary and, on failure, the error artifact.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"web-task-agent/internal/config"
	"web-task-agent/internal/entity"
	"web-task-agent/pkg/apperr"
	"web-task-agent/pkg/logg"
	"web-task-agent/pkg/tracing"
)

const (
	recorderName   = "HistoryRecorder"
	recorderTracer = "history.recorder"

	summaryFile = "summary.json"
	failureFile = "error.json"
	failureShot = "error.jpg"

	dirPerm  = 0755
	filePerm = 0644
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Recorder struct {
	config *config.Config
	logger *zap.Logger
	tracer trace.Tracer
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewRecorder(params Params) *Recorder {
	return &Recorder{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, recorderName)),
		tracer: otel.Tracer(recorderTracer),
	}
}

// BeginRun creates the run directory and returns the handle all step
// artifacts of this run are written through.
func (r *Recorder) BeginRun(ctx context.Context, task string) (run *Run, err error) {
	const op = "BeginRun"
	logger := r.logger.With(zap.String(logg.Operation, op))

	_, step := tracing.StartSpan(ctx, r.tracer, logger, op, tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	runID := fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), uuid.New().String()[:8])
	dir := filepath.Join(r.config.WorkflowConfig.ArtifactRoot, runID)

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "run_dir_create_failed",
			apperr.MetaStage:  apperr.StageArtifact,
			apperr.MetaRunID:  runID,
		})
	}

	logger.Info("Run started", zap.String(logg.RunID, runID), zap.String(logg.Path, dir))

	return &Run{
		id:        runID,
		dir:       dir,
		task:      task,
		startedAt: time.Now(),
		logger:    r.logger.With(zap.String(logg.RunID, runID)),
		tracer:    r.tracer,
	}, nil
}

// Run accumulates the steps of one workflow execution. The workflow loop is
// strictly sequential, so no locking is needed here.
type Run struct {
	id        string
	dir       string
	task      string
	startedAt time.Time
	steps     []entity.WorkflowStep
	logger    *zap.Logger
	tracer    trace.Tracer
}

func (run *Run) ID() string  { return run.id }
func (run *Run) Dir() string { return run.dir }

func (run *Run) Steps() []entity.WorkflowStep {
	return run.steps
}

// Summaries renders the compact step history handed to the decision engine.
func (run *Run) Summaries() []entity.StepSummary {
	out := make([]entity.StepSummary, len(run.steps))
	for i, s := range run.steps {
		out[i] = s.Summary()
	}

	return out
}

type pageStateRecord struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type observationRecord struct {
	StepNumber     int                 `json:"stepNumber"`
	Action         entity.ActionRecord `json:"action"`
	Reasoning      string              `json:"reasoning"`
	Description    string              `json:"description"`
	PageState      pageStateRecord     `json:"pageState"`
	ScreenshotPath string              `json:"screenshotPath"`
	Timestamp      time.Time           `json:"timestamp"`
}

// RecordStep writes the full artifact pair plus screenshot for one executed
// step and appends it to the run. All files are on disk when this returns,
// so the next observation never outruns the trail.
func (run *Run) RecordStep(ctx context.Context, stepNumber int, action entity.Action, reasoning string, state *entity.PageState) (recorded entity.WorkflowStep, err error) {
	const op = "RecordStep"
	logger := run.logger.With(zap.String(logg.Operation, op), zap.Int(logg.Step, stepNumber))

	_, span := tracing.StartSpan(ctx, run.tracer, logger, op,
		tracing.StepAttr(stepNumber), tracing.ActionAttr(string(action.Kind())))
	defer func() {
		span.End(err)
	}()

	base := fmt.Sprintf("step_%03d_%s", stepNumber, action.Kind())
	shotName := base + ".jpg"
	now := time.Now()

	if err := os.WriteFile(filepath.Join(run.dir, shotName), state.Screenshot, filePerm); err != nil {
		return entity.WorkflowStep{}, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_write_failed",
			apperr.MetaStage:  apperr.StageArtifact,
			apperr.MetaStep:   stepNumber,
		})
	}

	record := observationRecord{
		StepNumber:     stepNumber,
		Action:         entity.RecordOf(action),
		Reasoning:      reasoning,
		Description:    action.Describe(),
		PageState:      pageStateRecord{URL: state.URL, Title: state.Title},
		ScreenshotPath: shotName,
		Timestamp:      now,
	}

	if err := run.writeJSON(base+".json", record); err != nil {
		return entity.WorkflowStep{}, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "observation_write_failed",
			apperr.MetaStage:  apperr.StageArtifact,
			apperr.MetaStep:   stepNumber,
		})
	}

	if err := run.writeJSON(base+"_elements.json", state.Elements); err != nil {
		return entity.WorkflowStep{}, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "elements_write_failed",
			apperr.MetaStage:  apperr.StageArtifact,
			apperr.MetaStep:   stepNumber,
		})
	}

	recorded = entity.WorkflowStep{
		StepNumber:     stepNumber,
		Action:         action,
		Reasoning:      reasoning,
		ScreenshotPath: shotName,
		Timestamp:      now,
	}
	run.steps = append(run.steps, recorded)

	logger.Info("Step recorded", zap.String(logg.Action, string(action.Kind())))

	return recorded, nil
}

type failureRecord struct {
	Task           string    `json:"task"`
	RunID          string    `json:"runId"`
	StepNumber     int       `json:"stepNumber"`
	Error          string    `json:"error"`
	Code           string    `json:"code"`
	ScreenshotPath string    `json:"screenshotPath,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// RecordFailure writes the error artifact and, when available, a last
// screenshot. Best effort: failures here are logged, not propagated, so the
// original error keeps flowing to the caller.
func (run *Run) RecordFailure(runErr error, screenshot []byte) {
	const op = "RecordFailure"
	logger := run.logger.With(zap.String(logg.Operation, op))

	record := failureRecord{
		Task:       run.task,
		RunID:      run.id,
		StepNumber: len(run.steps),
		Error:      runErr.Error(),
		Code:       apperr.CodeOf(runErr),
		Timestamp:  time.Now(),
	}

	if len(screenshot) > 0 {
		if err := os.WriteFile(filepath.Join(run.dir, failureShot), screenshot, filePerm); err != nil {
			logger.Warn("Failed to write error screenshot", zap.Error(err))
		} else {
			record.ScreenshotPath = failureShot
		}
	}

	if err := run.writeJSON(failureFile, record); err != nil {
		logger.Warn("Failed to write error artifact", zap.Error(err))
	}
}

// ExportSummary writes summary.json and returns its path together with the
// assembled summary. Called on every exit path.
func (run *Run) ExportSummary(ctx context.Context, status entity.RunStatus) (summary *entity.RunSummary, path string, err error) {
	const op = "ExportSummary"
	logger := run.logger.With(zap.String(logg.Operation, op))

	_, span := tracing.StartSpan(ctx, run.tracer, logger, op, tracing.RunAttr(run.id))
	defer func() {
		span.End(err)
	}()

	records := make([]entity.StepRecord, len(run.steps))
	for i, s := range run.steps {
		record := entity.StepRecord{
			StepNumber:     s.StepNumber,
			Action:         s.Action.Kind(),
			Reasoning:      s.Reasoning,
			ScreenshotPath: s.ScreenshotPath,
		}

		switch a := s.Action.(type) {
		case entity.ClickAction:
			record.Selector = a.Selector
			record.Coordinates = a.Point
		case entity.TypeAction:
			record.Selector = a.Selector
		}

		records[i] = record
	}

	summary = &entity.RunSummary{
		RunID:      run.id,
		Task:       run.task,
		Status:     status,
		TotalSteps: len(run.steps),
		StartedAt:  run.startedAt,
		FinishedAt: time.Now(),
		Steps:      records,
	}

	if err := run.writeJSON(summaryFile, summary); err != nil {
		return nil, "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "summary_write_failed",
			apperr.MetaStage:  apperr.StageArtifact,
			apperr.MetaRunID:  run.id,
		})
	}

	path = filepath.Join(run.dir, summaryFile)
	logger.Info("Summary exported", zap.String(logg.Path, path), zap.Int("total_steps", summary.TotalSteps))

	return summary, path, nil
}

func (run *Run) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	if err := os.WriteFile(filepath.Join(run.dir, name), data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}
