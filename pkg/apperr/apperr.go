package apperr

import (
	"errors"
	"fmt"
)

const (
	MetaReason   = "reason"
	MetaStage    = "stage"
	MetaField    = "field"
	MetaTaskID   = "task_id"
	MetaRunID    = "run_id"
	MetaStep     = "step"
	MetaAction   = "action"
	MetaSelector = "selector"
	MetaURL      = "url"
	MetaProvider = "provider"

	StageBootstrap   = "bootstrap"
	StageBrowser     = "browser"
	StageEngine      = "engine"
	StageExecution   = "execution"
	StageScreenshot  = "screenshot"
	StageObservation = "observation"
	StageNavigation  = "navigation"
	StageInteraction = "interaction"
	StageArtifact    = "artifact"

	CodeInternal        = "internal"
	CodeInvalidArgument = "invalid_argument"
	CodeTimeout         = "timeout"
	CodeBrowserNotReady = "browser_not_ready"
	CodeActionFailed    = "action_failed"
	CodeElementNotFound = "element_not_found"
	CodeUnsupported     = "unsupported_action"
	CodeDecisionParse   = "decision_parse"
	CodeRateLimited     = "rate_limited"
	CodeSessionInit     = "session_init"
	CodeEngine          = "engine_error"
	CodeStepBudget      = "step_budget_exhausted"
)

type Error struct {
	Op       string
	Code     string
	Err      error
	Metadata map[string]any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Wrap(op, code string, err error, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}

	return &Error{
		Op:       op,
		Code:     code,
		Err:      err,
		Metadata: metadata,
	}
}

func WrapWithReason(op, code string, err error, reason string) error {
	return Wrap(op, code, err, map[string]any{
		MetaReason: reason,
	})
}

func WrapErrorWithReason(op, code, reason string) error {
	return Wrap(op, code, errors.New(reason), map[string]any{
		MetaReason: reason,
	})
}

func InvalidReqError(op, field string, err error) error {
	return Wrap(op, CodeInvalidArgument, err, map[string]any{
		MetaField:  field,
		MetaReason: "invalid_request",
	})
}

func ElementNotFound(op, selector string, err error) error {
	return Wrap(op, CodeElementNotFound, err, map[string]any{
		MetaSelector: selector,
		MetaStage:    StageInteraction,
	})
}

func UnsupportedAction(op, kind string) error {
	return Wrap(op, CodeUnsupported, fmt.Errorf("action %q is not in the supported set", kind), map[string]any{
		MetaAction: kind,
		MetaStage:  StageExecution,
	})
}

func DecisionParse(op string, err error, reason string) error {
	return Wrap(op, CodeDecisionParse, err, map[string]any{
		MetaReason: reason,
		MetaStage:  StageEngine,
	})
}

// CodeOf walks the chain and returns the outermost Error code, or
// CodeInternal when no Error is present.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return CodeInternal
}

func IsCode(err error, code string) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}

	return false
}
