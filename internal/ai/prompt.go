package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"web-task-agent/internal/entity"
	"web-task-agent/pkg/apperr"
)

const maxPromptElements = 60

const plannerSystemPrompt = `You plan and execute web tasks through a browser.
You see a screenshot of the current page plus an inventory of its interactive
elements. Each step you pick exactly one action:
- click: press an element, identified by its selector from the inventory
- type: replace the content of a text field, identified by its selector
- navigate: load a different URL
- complete: the task end state is reached, nothing left to do
Always use selectors verbatim from the inventory. Explain your choice in one
or two sentences of reasoning. Set completed=true only when the end state
criterion is satisfied on the page you see.`

const initialURLPrompt = `Given the task below, answer with the single best URL
to start from. Prefer the most specific entry point you are confident exists.

Task: %s`

const endStatePrompt = `Given the task below, describe in one sentence the
observable page state that proves the task is finished. Answer with the
criterion only.

Task: %s`

func buildDecidePrompt(req *entity.DecisionRequest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Task: %s\n", req.Task)
	fmt.Fprintf(&sb, "End state criterion: %s\n\n", req.Criterion)

	if len(req.History) > 0 {
		sb.WriteString("Steps so far:\n")
		sb.WriteString(renderHistory(req.History))
		sb.WriteString("\n")
	}

	sb.WriteString(renderObservation(req.Observation))
	sb.WriteString("\nDecide the next action.")

	return sb.String()
}

func renderObservation(obs *entity.PageState) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Current URL: %s\n", obs.URL)
	fmt.Fprintf(&sb, "Page title: %s\n", obs.Title)

	shown := len(obs.Elements)
	if shown > maxPromptElements {
		shown = maxPromptElements
	}

	fmt.Fprintf(&sb, "Interactive elements (%d of %d):\n", shown, len(obs.Elements))

	for i := 0; i < shown; i++ {
		el := obs.Elements[i]
		fmt.Fprintf(&sb, "%d. [%s]", i+1, el.Role)
		if el.Text != "" {
			fmt.Fprintf(&sb, " %q", el.Text)
		}
		fmt.Fprintf(&sb, " | %s | region=%s depth=%d", el.Selector, el.Region, el.Depth)
		if el.Placeholder != "" {
			fmt.Fprintf(&sb, " | placeholder=%q", el.Placeholder)
		}
		if el.Value != "" {
			fmt.Fprintf(&sb, " | value=%q", el.Value)
		}
		fmt.Fprintf(&sb, " | box=(%.0f,%.0f %.0fx%.0f)\n",
			el.BoundingBox.X, el.BoundingBox.Y, el.BoundingBox.Width, el.BoundingBox.Height)
	}

	if rest := len(obs.Elements) - shown; rest > 0 {
		fmt.Fprintf(&sb, "... and %d more\n", rest)
	}

	return sb.String()
}

func renderHistory(history []entity.StepSummary) string {
	var sb strings.Builder

	for _, s := range history {
		fmt.Fprintf(&sb, "step %d: %s - %s", s.StepNumber, s.Action, s.Detail)
		if s.Reasoning != "" {
			fmt.Fprintf(&sb, " (%s)", s.Reasoning)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

const decisionJSONHint = `Respond with a single JSON object:
{"action": "click|type|navigate|complete", "selector": "...", "text": "...", "url": "...", "reasoning": "...", "completed": false}
Omit fields that do not apply. No prose outside the JSON.`

const initialURLJSONHint = `Respond with a single JSON object: {"url": "..."}`

// decisionSchema is the JSON shape every provider is asked to produce.
var decisionSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"action": map[string]interface{}{
			"type": "string",
			"enum": []string{"click", "type", "navigate", "complete"},
		},
		"selector": map[string]interface{}{
			"type":        "string",
			"description": "Element selector, verbatim from the inventory. Required for click and type.",
		},
		"text": map[string]interface{}{
			"type":        "string",
			"description": "Text to type. Required for type.",
		},
		"url": map[string]interface{}{
			"type":        "string",
			"description": "Target URL. Required for navigate.",
		},
		"reasoning": map[string]interface{}{
			"type": "string",
		},
		"completed": map[string]interface{}{
			"type": "boolean",
		},
	},
	"required": []string{"action", "reasoning"},
}

// decodeDecisionMap shapes a generic tool-call payload into a Decision.
func decodeDecisionMap(op string, input map[string]interface{}) (*entity.Decision, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, apperr.DecisionParse(op, err, "decision_marshal_failed")
	}

	return decodeDecisionJSON(op, data)
}

// decodeDecisionJSON parses a decision document and enforces the fields the
// loop cannot proceed without.
func decodeDecisionJSON(op string, data []byte) (*entity.Decision, error) {
	var decision entity.Decision
	if err := json.Unmarshal(data, &decision); err != nil {
		return nil, apperr.DecisionParse(op, err, "decision_unmarshal_failed")
	}

	decision.Action = strings.ToLower(strings.TrimSpace(decision.Action))
	if decision.Action == "" {
		return nil, apperr.DecisionParse(op, fmt.Errorf("decision has no action"), "missing_action")
	}

	return &decision, nil
}

// extractJSONObject tolerates providers that wrap the JSON document in prose
// or a code fence by slicing the outermost object.
func extractJSONObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}

	return s[start : end+1], true
}
