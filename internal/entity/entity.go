package entity

import (
	"fmt"
	"time"
)

type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (b BoundingBox) Center() ClickPoint {
	return ClickPoint{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

type ClickPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PageRegion string

const (
	RegionHeader  PageRegion = "header"
	RegionNav     PageRegion = "nav"
	RegionSidebar PageRegion = "sidebar"
	RegionFooter  PageRegion = "footer"
	RegionMain    PageRegion = "main"
)

type ElementRole string

const (
	RoleButton   ElementRole = "button"
	RoleLink     ElementRole = "link"
	RoleTextbox  ElementRole = "textbox"
	RoleSelect   ElementRole = "select"
	RoleMenuItem ElementRole = "menuitem"
	RoleTab      ElementRole = "tab"
	RoleOption   ElementRole = "option"
	RoleSwitch   ElementRole = "switch"
	RoleCheckbox ElementRole = "checkbox"
	RoleRadio    ElementRole = "radio"
)

type InteractiveElement struct {
	Selector       string      `json:"selector"`
	Text           string      `json:"text,omitempty"`
	Role           ElementRole `json:"role"`
	Visible        bool        `json:"visible"`
	BoundingBox    BoundingBox `json:"boundingBox"`
	Region         PageRegion  `json:"region"`
	Depth          int         `json:"depth"`
	ParentSelector string      `json:"parentSelector,omitempty"`
	AriaLabel      string      `json:"ariaLabel,omitempty"`
	Placeholder    string      `json:"placeholder,omitempty"`
	Title          string      `json:"title,omitempty"`
	Name           string      `json:"name,omitempty"`
	Type           string      `json:"type,omitempty"`
	Value          string      `json:"value,omitempty"`
}

// PageState is a point-in-time observation of the page. It is never mutated
// after capture; each workflow step produces a fresh one.
type PageState struct {
	URL        string
	Title      string
	Elements   []InteractiveElement
	Screenshot []byte
	CapturedAt time.Time
}

// ElementBySelector returns the first element of the observation carrying the
// selector, preserving harvest order.
func (p *PageState) ElementBySelector(selector string) (InteractiveElement, bool) {
	for _, el := range p.Elements {
		if el.Selector == selector {
			return el, true
		}
	}
	return InteractiveElement{}, false
}

type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionNavigate ActionKind = "navigate"
	ActionComplete ActionKind = "complete"
)

// Action is the closed set of executable actions. New variants must be added
// here, not smuggled through string fields.
type Action interface {
	Kind() ActionKind
	Describe() string
	isAction()
}

type ClickAction struct {
	Selector  string
	TargetBox *BoundingBox
	Point     *ClickPoint
}

func (ClickAction) Kind() ActionKind { return ActionClick }
func (ClickAction) isAction()        {}
func (a ClickAction) Describe() string {
	if a.Point != nil {
		return fmt.Sprintf("Clicked %s at (%.0f, %.0f)", a.Selector, a.Point.X, a.Point.Y)
	}
	return fmt.Sprintf("Clicked %s", a.Selector)
}

type TypeAction struct {
	Selector string
	Text     string
}

func (TypeAction) Kind() ActionKind { return ActionType }
func (TypeAction) isAction()        {}
func (a TypeAction) Describe() string {
	return fmt.Sprintf("Typed %q into %s", a.Text, a.Selector)
}

type NavigateAction struct {
	URL string
}

func (NavigateAction) Kind() ActionKind { return ActionNavigate }
func (NavigateAction) isAction()        {}
func (a NavigateAction) Describe() string {
	return fmt.Sprintf("Navigated to %s", a.URL)
}

type CompleteAction struct{}

func (CompleteAction) Kind() ActionKind { return ActionComplete }
func (CompleteAction) isAction()        {}
func (CompleteAction) Describe() string { return "Task completed" }

// ActionRecord is the flat artifact encoding of an Action.
type ActionRecord struct {
	Kind        ActionKind   `json:"kind"`
	Selector    string       `json:"selector,omitempty"`
	Text        string       `json:"text,omitempty"`
	URL         string       `json:"url,omitempty"`
	Coordinates *ClickPoint  `json:"coordinates,omitempty"`
	TargetBox   *BoundingBox `json:"targetBox,omitempty"`
}

func RecordOf(a Action) ActionRecord {
	switch v := a.(type) {
	case ClickAction:
		return ActionRecord{Kind: v.Kind(), Selector: v.Selector, Coordinates: v.Point, TargetBox: v.TargetBox}
	case TypeAction:
		return ActionRecord{Kind: v.Kind(), Selector: v.Selector, Text: v.Text}
	case NavigateAction:
		return ActionRecord{Kind: v.Kind(), URL: v.URL}
	case CompleteAction:
		return ActionRecord{Kind: v.Kind()}
	default:
		return ActionRecord{}
	}
}

// Decision is the raw engine verdict for one step. Action is kept as the raw
// string so that out-of-set kinds can be rejected explicitly.
type Decision struct {
	Action    string `json:"action"`
	Selector  string `json:"selector,omitempty"`
	Text      string `json:"text,omitempty"`
	URL       string `json:"url,omitempty"`
	Reasoning string `json:"reasoning"`
	Completed bool   `json:"completed"`
}

type DecisionRequest struct {
	Task        string
	Criterion   string
	Observation *PageState
	History     []StepSummary
}

type StepSummary struct {
	StepNumber int
	Action     ActionKind
	Detail     string
	Reasoning  string
}

type WorkflowStep struct {
	StepNumber     int
	Action         Action
	Reasoning      string
	ScreenshotPath string
	Timestamp      time.Time
}

func (s WorkflowStep) Summary() StepSummary {
	return StepSummary{
		StepNumber: s.StepNumber,
		Action:     s.Action.Kind(),
		Detail:     s.Action.Describe(),
		Reasoning:  s.Reasoning,
	}
}

type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusExhausted RunStatus = "exhausted"
	RunStatusFailed    RunStatus = "failed"
)

type StepRecord struct {
	StepNumber     int         `json:"stepNumber"`
	Action         ActionKind  `json:"action"`
	Selector       string      `json:"selector,omitempty"`
	Coordinates    *ClickPoint `json:"coordinates,omitempty"`
	Reasoning      string      `json:"reasoning"`
	ScreenshotPath string      `json:"screenshotPath"`
}

type RunSummary struct {
	RunID      string       `json:"runId"`
	Task       string       `json:"task"`
	Status     RunStatus    `json:"status"`
	TotalSteps int          `json:"totalSteps"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
	Steps      []StepRecord `json:"steps"`
}

type RunResult struct {
	RunID       string
	Status      RunStatus
	Dir         string
	SummaryPath string
	Summary     *RunSummary
}
