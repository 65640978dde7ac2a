package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"web-task-agent/internal/config"
	"web-task-agent/internal/entity"
	"web-task-agent/internal/history"
	"web-task-agent/pkg/apperr"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clickCall struct {
	selector string
	target   *entity.BoundingBox
}

type fillCall struct {
	selector string
	text     string
}

type fakeDriver struct {
	ready       bool
	currentURL  string
	titles      map[string]string
	elements    map[string][]entity.InteractiveElement
	navigations []string
	clicks      []clickCall
	fills       []fillCall
	clickErr    error
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		ready:    true,
		titles:   map[string]string{},
		elements: map[string][]entity.InteractiveElement{},
	}
}

func (d *fakeDriver) Launch(ctx context.Context) error { return nil }
func (d *fakeDriver) Close(ctx context.Context) error  { return nil }

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.navigations = append(d.navigations, url)
	d.currentURL = url

	return nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte("jpeg-bytes"), nil
}

func (d *fakeDriver) QueryInteractiveElements(ctx context.Context) ([]entity.InteractiveElement, error) {
	return d.elements[d.currentURL], nil
}

func (d *fakeDriver) ResolveAndClick(ctx context.Context, selector string, target *entity.BoundingBox) (entity.ClickPoint, error) {
	d.clicks = append(d.clicks, clickCall{selector: selector, target: target})

	if d.clickErr != nil {
		return entity.ClickPoint{}, d.clickErr
	}

	if target != nil {
		return target.Center(), nil
	}

	return entity.ClickPoint{X: 1, Y: 1}, nil
}

func (d *fakeDriver) Fill(ctx context.Context, selector, text string) error {
	d.fills = append(d.fills, fillCall{selector: selector, text: text})

	return nil
}

func (d *fakeDriver) URL(ctx context.Context) (string, error)   { return d.currentURL, nil }
func (d *fakeDriver) Title(ctx context.Context) (string, error) { return d.titles[d.currentURL], nil }
func (d *fakeDriver) IsReady() bool                             { return d.ready }

type fakeEngine struct {
	startURL        string
	criterion       string
	decisions       []*entity.Decision
	defaultDecision *entity.Decision
	requests        []*entity.DecisionRequest
	decideErr       error
}

func (e *fakeEngine) InitialURL(ctx context.Context, task string) (string, error) {
	return e.startURL, nil
}

func (e *fakeEngine) EndState(ctx context.Context, task string) (string, error) {
	return e.criterion, nil
}

func (e *fakeEngine) Decide(ctx context.Context, req *entity.DecisionRequest) (*entity.Decision, error) {
	e.requests = append(e.requests, req)

	if e.decideErr != nil {
		return nil, e.decideErr
	}

	if len(e.decisions) > 0 {
		next := e.decisions[0]
		e.decisions = e.decisions[1:]

		return next, nil
	}

	if e.defaultDecision != nil {
		return e.defaultDecision, nil
	}

	return &entity.Decision{Action: "complete", Reasoning: "nothing left to do"}, nil
}

const (
	testStartURL  = "https://shop.example/"
	testCriterion = "The cart page shows the ordered item."
)

func newTestWorkflow(t *testing.T, driver *fakeDriver, engine *fakeEngine, maxSteps int) *WorkflowService {
	t.Helper()

	cfg := &config.Config{
		AppConfig:      &config.AppConfig{LogLevel: "debug"},
		BrowserConfig:  &config.BrowserConfig{},
		WorkflowConfig: &config.WorkflowConfig{MaxSteps: maxSteps, ArtifactRoot: t.TempDir()},
	}

	recorder := history.NewRecorder(history.Params{Config: cfg, Logger: zap.NewNop()})

	return NewWorkflowService(WorkflowServiceParams{
		Config:   cfg,
		Logger:   zap.NewNop(),
		Browser:  driver,
		Engine:   engine,
		Recorder: recorder,
	})
}

func saveButtonElement(selector string) entity.InteractiveElement {
	return entity.InteractiveElement{
		Selector:    selector,
		Text:        "Save",
		Role:        entity.RoleButton,
		Visible:     true,
		BoundingBox: entity.BoundingBox{X: 10, Y: 20, Width: 40, Height: 20},
		Region:      entity.RegionMain,
	}
}

func TestRunCompletesOnCompleteAction(t *testing.T) {
	driver := newFakeDriver()
	driver.titles[testStartURL] = "Shop"
	driver.elements[testStartURL] = []entity.InteractiveElement{saveButtonElement("#add-to-cart")}

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "click", Selector: "#add-to-cart", Reasoning: "add the item"},
			{Action: "complete", Reasoning: "item is in the cart", Completed: true},
		},
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "buy the item")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, entity.RunStatusCompleted, res.Status)
	assert.NotEmpty(t, res.RunID)
	require.FileExists(t, res.SummaryPath)

	require.NotNil(t, res.Summary)
	assert.Equal(t, 3, res.Summary.TotalSteps)
	require.Len(t, res.Summary.Steps, 3)

	first := res.Summary.Steps[0]
	assert.Equal(t, 0, first.StepNumber)
	assert.Equal(t, entity.ActionNavigate, first.Action)
	assert.Equal(t, "Initial page load", first.Reasoning)
	assert.Empty(t, first.Selector)

	click := res.Summary.Steps[1]
	assert.Equal(t, entity.ActionClick, click.Action)
	assert.Equal(t, "#add-to-cart", click.Selector)
	require.NotNil(t, click.Coordinates)
	assert.Equal(t, entity.ClickPoint{X: 30, Y: 30}, *click.Coordinates)

	assert.Equal(t, entity.ActionComplete, res.Summary.Steps[2].Action)

	require.Len(t, driver.clicks, 1)
	require.NotNil(t, driver.clicks[0].target)
	assert.Equal(t, entity.BoundingBox{X: 10, Y: 20, Width: 40, Height: 20}, *driver.clicks[0].target)

	require.Len(t, engine.requests, 2)
	assert.Equal(t, testCriterion, engine.requests[0].Criterion)
	assert.Equal(t, testStartURL, engine.requests[0].Observation.URL)
	require.Len(t, engine.requests[0].History, 1)
	assert.Len(t, engine.requests[1].History, 2)
}

func TestRunCompletedFlagEndsRunAfterAction(t *testing.T) {
	driver := newFakeDriver()
	driver.elements[testStartURL] = []entity.InteractiveElement{saveButtonElement("#confirm")}

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "click", Selector: "#confirm", Reasoning: "last click", Completed: true},
		},
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "confirm the order")
	require.NoError(t, err)

	assert.Equal(t, entity.RunStatusCompleted, res.Status)
	assert.Equal(t, 2, res.Summary.TotalSteps)
	assert.Len(t, driver.clicks, 1)
	assert.Len(t, engine.requests, 1)
}

func TestRunExhaustsStepBudget(t *testing.T) {
	driver := newFakeDriver()
	driver.elements[testStartURL] = []entity.InteractiveElement{saveButtonElement("#next")}

	engine := &fakeEngine{
		startURL:        testStartURL,
		criterion:       testCriterion,
		defaultDecision: &entity.Decision{Action: "click", Selector: "#next", Reasoning: "keep going"},
	}

	workflow := newTestWorkflow(t, driver, engine, 3)

	res, err := workflow.Run(context.Background(), "an endless task")
	require.NoError(t, err)

	assert.Equal(t, entity.RunStatusExhausted, res.Status)
	assert.Equal(t, 4, res.Summary.TotalSteps)
	assert.Len(t, driver.clicks, 3)
	assert.Len(t, engine.requests, 3)
	require.FileExists(t, res.SummaryPath)
}

func TestRunRejectsUnknownActionBeforeBrowserUse(t *testing.T) {
	driver := newFakeDriver()

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "delete", Reasoning: "remove the record"},
		},
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "some task")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeUnsupported))

	require.NotNil(t, res)
	assert.Equal(t, entity.RunStatusFailed, res.Status)

	assert.Empty(t, driver.clicks)
	assert.Empty(t, driver.fills)
	assert.Equal(t, []string{testStartURL}, driver.navigations)

	data, readErr := os.ReadFile(filepath.Join(res.Dir, "error.json"))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), `"code": "unsupported_action"`)
	assert.Contains(t, string(data), "delete")
}

func TestRunTypeActionFillsField(t *testing.T) {
	driver := newFakeDriver()

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "type", Selector: "#search", Text: "wireless mouse", Reasoning: "search for it"},
			{Action: "complete", Reasoning: "results shown"},
		},
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "find a mouse")
	require.NoError(t, err)

	require.Len(t, driver.fills, 1)
	assert.Equal(t, fillCall{selector: "#search", text: "wireless mouse"}, driver.fills[0])

	typed := res.Summary.Steps[1]
	assert.Equal(t, entity.ActionType, typed.Action)
	assert.Equal(t, "#search", typed.Selector)
	assert.Nil(t, typed.Coordinates)
}

func TestRunNavigateAction(t *testing.T) {
	driver := newFakeDriver()

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "navigate", URL: "https://shop.example/cart", Reasoning: "open the cart"},
			{Action: "complete", Reasoning: "cart visible"},
		},
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "open the cart")
	require.NoError(t, err)

	assert.Equal(t, []string{testStartURL, "https://shop.example/cart"}, driver.navigations)
	assert.Equal(t, entity.ActionNavigate, res.Summary.Steps[1].Action)
}

func TestRunClickWithoutSelectorFailsAsDecisionParse(t *testing.T) {
	driver := newFakeDriver()

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "click", Reasoning: "click something"},
		},
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "some task")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeDecisionParse))
	assert.Equal(t, entity.RunStatusFailed, res.Status)
	assert.Empty(t, driver.clicks)
}

func TestRunElementNotFoundFailsRun(t *testing.T) {
	driver := newFakeDriver()
	driver.clickErr = apperr.ElementNotFound("ResolveAndClick", "#gone", errors.New("no matches"))

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "click", Selector: "#gone", Reasoning: "click it"},
		},
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "some task")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeElementNotFound))
	assert.Equal(t, entity.RunStatusFailed, res.Status)

	data, readErr := os.ReadFile(filepath.Join(res.Dir, "error.json"))
	require.NoError(t, readErr)
	assert.Contains(t, string(data), `"code": "element_not_found"`)
}

func TestRunDecideErrorFailsRun(t *testing.T) {
	driver := newFakeDriver()

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decideErr: apperr.WrapErrorWithReason("Decide", apperr.CodeRateLimited, "quota_exceeded"),
	}

	workflow := newTestWorkflow(t, driver, engine, 5)

	res, err := workflow.Run(context.Background(), "some task")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeRateLimited))
	assert.Equal(t, entity.RunStatusFailed, res.Status)
}

func TestRunEmptyTask(t *testing.T) {
	workflow := newTestWorkflow(t, newFakeDriver(), &fakeEngine{startURL: testStartURL}, 5)

	res, err := workflow.Run(context.Background(), "")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidArgument))
	assert.Nil(t, res)
}

func TestRunBrowserNotReady(t *testing.T) {
	driver := newFakeDriver()
	driver.ready = false

	workflow := newTestWorkflow(t, driver, &fakeEngine{startURL: testStartURL}, 5)

	res, err := workflow.Run(context.Background(), "some task")
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeSessionInit))
	assert.Nil(t, res)
}

func TestRunCancelledContextFailsRun(t *testing.T) {
	driver := newFakeDriver()

	ctx, cancel := context.WithCancel(context.Background())

	engine := &fakeEngine{
		startURL:  testStartURL,
		criterion: testCriterion,
		decisions: []*entity.Decision{
			{Action: "click", Selector: "#next", Reasoning: "first"},
		},
		defaultDecision: &entity.Decision{Action: "click", Selector: "#next", Reasoning: "again"},
	}
	driver.elements[testStartURL] = []entity.InteractiveElement{saveButtonElement("#next")}

	workflow := newTestWorkflow(t, driver, engine, 5)

	// The loop checks the context ahead of every decision, so the run fails
	// before the first click.
	cancel()

	res, err := workflow.Run(ctx, "some task")
	require.Error(t, err)
	assert.Equal(t, entity.RunStatusFailed, res.Status)
	assert.Empty(t, driver.clicks)
}
