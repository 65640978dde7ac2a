package usecase

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"web-task-agent/internal/entity"
	"web-task-agent/pkg/apperr"
	"web-task-agent/pkg/logg"
	"web-task-agent/pkg/tracing"
)

// observe captures a fresh page state: URL, title, the interactive element
// set and a full-page screenshot.
func (s *WorkflowService) observe(ctx context.Context) (state *entity.PageState, err error) {
	const op = "observe"
	logger := s.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op)
	defer func() {
		step.End(err)
	}()

	url, err := s.browser.URL(ctx)
	if err != nil {
		return nil, err
	}

	title, err := s.browser.Title(ctx)
	if err != nil {
		return nil, err
	}

	step.AddEvent("extracting interactive elements")

	elements, err := s.browser.QueryInteractiveElements(ctx)
	if err != nil {
		return nil, err
	}

	step.AddEvent("taking screenshot")

	screenshot, err := s.browser.Screenshot(ctx)
	if err != nil {
		return nil, err
	}

	step.SetAttributes(attribute.Int("element_count", len(elements)))

	return &entity.PageState{
		URL:        url,
		Title:      title,
		Elements:   elements,
		Screenshot: screenshot,
		CapturedAt: time.Now(),
	}, nil
}

// resolveAction validates a raw decision against the closed action set before
// anything touches the browser. Unknown kinds are rejected here, so an
// unsupported action never mutates the page. For clicks, the bounding box of
// the chosen element is lifted from the observation the engine decided on; it
// later disambiguates selectors that match several nodes.
func (s *WorkflowService) resolveAction(decision *entity.Decision, state *entity.PageState) (entity.Action, error) {
	const op = "resolveAction"

	switch entity.ActionKind(decision.Action) {
	case entity.ActionClick:
		if decision.Selector == "" {
			return nil, apperr.DecisionParse(op, errors.New("click decision carries no selector"), "missing_selector")
		}

		click := entity.ClickAction{Selector: decision.Selector}

		if el, ok := state.ElementBySelector(decision.Selector); ok {
			box := el.BoundingBox
			click.TargetBox = &box
		}

		return click, nil
	case entity.ActionType:
		if decision.Selector == "" {
			return nil, apperr.DecisionParse(op, errors.New("type decision carries no selector"), "missing_selector")
		}

		if decision.Text == "" {
			return nil, apperr.DecisionParse(op, errors.New("type decision carries no text"), "missing_text")
		}

		return entity.TypeAction{Selector: decision.Selector, Text: decision.Text}, nil
	case entity.ActionNavigate:
		if decision.URL == "" {
			return nil, apperr.DecisionParse(op, errors.New("navigate decision carries no url"), "missing_url")
		}

		return entity.NavigateAction{URL: decision.URL}, nil
	case entity.ActionComplete:
		return entity.CompleteAction{}, nil
	default:
		return nil, apperr.UnsupportedAction(op, decision.Action)
	}
}

// act executes a resolved action against the browser and returns it enriched
// with execution detail, such as the coordinates a click landed on.
func (s *WorkflowService) act(ctx context.Context, action entity.Action) (performed entity.Action, err error) {
	const op = "act"
	logger := s.logger.With(zap.String(logg.Operation, op), zap.String(logg.Action, string(action.Kind())))

	ctx, step := tracing.StartSpan(ctx, s.tracer, logger, op,
		tracing.ActionAttr(string(action.Kind())))
	defer func() {
		step.End(err)
	}()

	switch a := action.(type) {
	case entity.ClickAction:
		step.SetAttributes(tracing.SelectorAttr(a.Selector))
		step.AddEvent("clicking element")

		point, err := s.browser.ResolveAndClick(ctx, a.Selector, a.TargetBox)
		if err != nil {
			return nil, err
		}

		a.Point = &point

		return a, nil
	case entity.TypeAction:
		step.SetAttributes(tracing.SelectorAttr(a.Selector))
		step.AddEvent("filling field")

		if err := s.browser.Fill(ctx, a.Selector, a.Text); err != nil {
			return nil, err
		}

		return a, nil
	case entity.NavigateAction:
		step.SetAttributes(tracing.URLAttr(a.URL))
		step.AddEvent("navigating")

		if err := s.browser.Navigate(ctx, a.URL); err != nil {
			return nil, err
		}

		return a, nil
	default:
		return nil, apperr.UnsupportedAction(op, string(action.Kind()))
	}
}
