package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/playwright-community/playwright-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"web-task-agent/internal/config"
	"web-task-agent/internal/entity"
	"web-task-agent/internal/grounding"
	"web-task-agent/pkg/apperr"
	"web-task-agent/pkg/logg"
	"web-task-agent/pkg/tracing"
)

const (
	driverName       = "BrowserDriver"
	driverTracer     = "browser.driver"
	loadStateTimeout = 5000
	actionTimeout    = 15000
	screenshotQual   = 60
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Driver owns the single browser session the workflow runs against. All
// methods execute on the current page; none of them may be called
// concurrently.
type Driver struct {
	config         *config.Config
	logger         *zap.Logger
	tracer         trace.Tracer
	playwright     *playwright.Playwright
	browser        playwright.Browser
	browserContext playwright.BrowserContext
	page           playwright.Page
	ready          bool
}

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

func NewDriver(params Params) *Driver {
	return &Driver{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, driverName)),
		tracer: otel.Tracer(driverTracer),
		ready:  false,
	}
}

func (d *Driver) Launch(ctx context.Context) (err error) {
	const op = "Launch"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching browser")
	step.AddEvent("installing playwright")

	err = playwright.Install()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
			apperr.MetaReason: "playwright_install_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	step.AddEvent("starting playwright")

	pw, err := playwright.Run()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
			apperr.MetaReason: "playwright_start_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	d.playwright = pw

	if d.config.BrowserConfig.UserDataDir != "" {
		return d.launchPersistent(ctx)
	}

	return d.launchNew(ctx)
}

func (d *Driver) launchPersistent(ctx context.Context) (err error) {
	const op = "launchPersistent"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching persistent browser context")

	userDataDir := d.config.BrowserConfig.UserDataDir

	if err := os.MkdirAll(userDataDir, 0755); err != nil {
		return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
			apperr.MetaReason: "mkdir_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	options := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless: playwright.Bool(d.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(d.config.BrowserConfig.SlowMo)),
		Viewport: &playwright.Size{
			Width:  d.config.WorkflowConfig.ViewportWidth,
			Height: d.config.WorkflowConfig.ViewportHeight,
		},
		AcceptDownloads:   playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
		},
	}

	browserContext, err := d.playwright.Chromium.LaunchPersistentContext(userDataDir, options)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
			apperr.MetaReason: "launch_persistent_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	d.browserContext = browserContext

	pages := browserContext.Pages()

	if len(pages) > 0 {
		d.page = pages[0]
		logger.Info("Using existing page")
	} else {
		page, err := browserContext.NewPage()
		if err != nil {
			return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
				apperr.MetaReason: "new_page_failed",
				apperr.MetaStage:  apperr.StageBrowser,
			})
		}
		d.page = page
		logger.Info("Created new page")
	}

	d.ready = true
	logger.Info("Browser launched")

	return nil
}

func (d *Driver) launchNew(ctx context.Context) (err error) {
	const op = "launchNew"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Launching new browser")

	browserOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(d.config.BrowserConfig.Headless),
		SlowMo:   playwright.Float(float64(d.config.BrowserConfig.SlowMo)),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
		},
	}

	browser, err := d.playwright.Chromium.Launch(browserOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
			apperr.MetaReason: "browser_launch_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	d.browser = browser

	contextOptions := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  d.config.WorkflowConfig.ViewportWidth,
			Height: d.config.WorkflowConfig.ViewportHeight,
		},
		AcceptDownloads:   playwright.Bool(true),
		JavaScriptEnabled: playwright.Bool(true),
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
			apperr.MetaReason: "context_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}

	d.browserContext = browserContext

	page, err := browserContext.NewPage()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeSessionInit, err, map[string]any{
			apperr.MetaReason: "page_create_failed",
			apperr.MetaStage:  apperr.StageBrowser,
		})
	}
	d.page = page

	d.ready = true
	logger.Info("Browser launched")

	return nil
}

func (d *Driver) Close(ctx context.Context) (err error) {
	const op = "Close"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	logger.Info("Closing browser session")

	if d.config.BrowserConfig.UserDataDir != "" {
		// Persistent profile: detach, keep the browser running.
		d.ready = false
		logger.Info("Session detached, persistent browser kept open")

		return nil
	}

	if d.browserContext != nil {
		if err := d.browserContext.Close(); err != nil {
			logger.Warn("Failed to close context", zap.Error(err))
		}
	}

	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			logger.Warn("Failed to close browser", zap.Error(err))
		}
	}

	if d.playwright != nil {
		if err := d.playwright.Stop(); err != nil {
			return apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
				apperr.MetaReason: "playwright_stop_failed",
			})
		}
	}

	d.ready = false
	logger.Info("Browser closed")

	return nil
}

func (d *Driver) ensurePageActive(ctx context.Context) error {
	if d.browserContext == nil {
		return fmt.Errorf("browser context is nil")
	}

	if d.page != nil && !d.page.IsClosed() {
		return nil
	}

	d.logger.Info("Page closed, reconnecting to active page")

	for _, p := range d.browserContext.Pages() {
		if !p.IsClosed() {
			d.page = p
			d.logger.Info("Reconnected to existing page")

			return nil
		}
	}

	page, err := d.browserContext.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create new page: %w", err)
	}

	d.page = page
	d.logger.Info("Created new page")

	return nil
}

func (d *Driver) Navigate(ctx context.Context, url string) (err error) {
	const op = "Navigate"
	logger := d.logger.With(zap.String(logg.Operation, op), zap.String(logg.URL, url))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op, tracing.URLAttr(url))
	defer func() {
		step.End(err)
	}()

	if !d.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := d.ensurePageActive(ctx); err != nil {
		return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	step.AddEvent("navigating")

	_, err = d.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   playwright.Float(d.config.BrowserConfig.NavigationTimeout()),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})

	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason: "goto_failed",
			apperr.MetaStage:  apperr.StageNavigation,
			apperr.MetaURL:    url,
		})
	}

	d.settle()
	step.AddEvent("navigation completed")

	return nil
}

// ResolveAndClick resolves the selector, disambiguates multiple matches by
// geometry against the target box, scrolls the winner into view and clicks
// its center. The clicked point is returned for the step record.
func (d *Driver) ResolveAndClick(ctx context.Context, selector string, target *entity.BoundingBox) (point entity.ClickPoint, err error) {
	const op = "ResolveAndClick"
	logger := d.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op, tracing.SelectorAttr(selector))
	defer func() {
		step.End(err)
	}()

	if !d.ready {
		return point, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := d.ensurePageActive(ctx); err != nil {
		return point, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	if selector == "" {
		return point, apperr.InvalidReqError(op, "selector", fmt.Errorf("empty selector"))
	}

	locator := d.page.Locator(selector)

	count, err := locator.Count()
	if err != nil {
		return point, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "locator_count_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	if count == 0 {
		return point, apperr.ElementNotFound(op, selector, fmt.Errorf("selector matched no elements"))
	}

	chosen := locator.First()

	if count > 1 && target != nil {
		step.AddEvent("disambiguating matches")
		logger.Info("Selector matched multiple elements", zap.Int(logg.Count, count))

		boxes := make([]*entity.BoundingBox, count)
		for i := 0; i < count; i++ {
			rect, boxErr := locator.Nth(i).BoundingBox()
			if boxErr != nil || rect == nil {
				continue
			}
			boxes[i] = &entity.BoundingBox{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
		}

		if idx := closestBoxIndex(boxes, *target); idx >= 0 {
			chosen = locator.Nth(idx)
		}
	}

	if err := chosen.ScrollIntoViewIfNeeded(); err != nil {
		return point, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "scroll_into_view_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	rect, err := chosen.BoundingBox()
	if err != nil || rect == nil {
		return point, apperr.ElementNotFound(op, selector, fmt.Errorf("element vanished after scroll"))
	}

	box := entity.BoundingBox{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}
	point = box.Center()

	step.AddEvent("clicking element center")

	if err := d.page.Mouse().Click(point.X, point.Y); err != nil {
		return entity.ClickPoint{}, apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "click_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	d.settle()
	step.AddEvent("click completed")

	return point, nil
}

func (d *Driver) Fill(ctx context.Context, selector, text string) (err error) {
	const op = "Fill"
	logger := d.logger.With(zap.String(logg.Operation, op), zap.String(logg.Selector, selector))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op, tracing.SelectorAttr(selector))
	defer func() {
		step.End(err)
	}()

	if !d.ready {
		return apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := d.ensurePageActive(ctx); err != nil {
		return apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	if selector == "" {
		return apperr.InvalidReqError(op, "selector", fmt.Errorf("empty selector"))
	}

	locator := d.page.Locator(selector)

	count, err := locator.Count()
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "locator_count_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	if count == 0 {
		return apperr.ElementNotFound(op, selector, fmt.Errorf("selector matched no elements"))
	}

	step.AddEvent("filling field")

	// Fill clears the field before setting the value.
	err = locator.First().Fill(text, playwright.LocatorFillOptions{
		Timeout: playwright.Float(actionTimeout),
	})
	if err != nil {
		return apperr.Wrap(op, apperr.CodeActionFailed, err, map[string]any{
			apperr.MetaReason:   "fill_failed",
			apperr.MetaStage:    apperr.StageInteraction,
			apperr.MetaSelector: selector,
		})
	}

	d.settle()
	step.AddEvent("fill completed")

	return nil
}

func (d *Driver) Screenshot(ctx context.Context) (shot []byte, err error) {
	const op = "Screenshot"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !d.ready {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := d.ensurePageActive(ctx); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	shot, err = d.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypeJpeg,
		Quality:  playwright.Int(screenshotQual),
	})
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_failed",
			apperr.MetaStage:  apperr.StageScreenshot,
		})
	}

	return shot, nil
}

// QueryInteractiveElements runs the in-page harvest and assembles the
// grounded element inventory from it.
func (d *Driver) QueryInteractiveElements(ctx context.Context) (elements []entity.InteractiveElement, err error) {
	const op = "QueryInteractiveElements"
	logger := d.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, d.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	if !d.ready {
		return nil, apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := d.ensurePageActive(ctx); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(loadStateTimeout),
	})

	result, err := d.page.Evaluate(harvestScript())
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "evaluate_failed",
			apperr.MetaStage:  apperr.StageObservation,
		})
	}

	raw, err := decodeHarvest(result)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "harvest_decode_failed",
			apperr.MetaStage:  apperr.StageObservation,
		})
	}

	elements = grounding.Assemble(raw)
	logger.Debug("Harvested elements", zap.Int(logg.Count, len(elements)))

	return elements, nil
}

// decodeHarvest round-trips the Evaluate result through JSON into typed
// records instead of walking interface maps by hand.
func decodeHarvest(result interface{}) ([]grounding.RawElement, error) {
	if result == nil {
		return nil, nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal harvest result: %w", err)
	}

	var raw []grounding.RawElement
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal harvest result: %w", err)
	}

	return raw, nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	const op = "URL"

	if !d.ready {
		return "", apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := d.ensurePageActive(ctx); err != nil {
		return "", apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	return d.page.URL(), nil
}

func (d *Driver) Title(ctx context.Context) (string, error) {
	const op = "Title"

	if !d.ready {
		return "", apperr.WrapErrorWithReason(op, apperr.CodeBrowserNotReady, "browser_not_ready")
	}

	if err := d.ensurePageActive(ctx); err != nil {
		return "", apperr.Wrap(op, apperr.CodeBrowserNotReady, err, map[string]any{
			apperr.MetaReason: "page_not_active",
		})
	}

	title, err := d.page.Title()
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "title_failed",
		})
	}

	return title, nil
}

func (d *Driver) IsReady() bool {
	return d.ready
}

// settle gives the page a fixed pause after every executed action so the
// next observation sees the settled DOM.
func (d *Driver) settle() {
	time.Sleep(d.config.WorkflowConfig.ActionDelay())
}
