package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"web-task-agent/internal/config"
	"web-task-agent/internal/entity"
	"web-task-agent/pkg/apperr"
	"web-task-agent/pkg/logg"
	"web-task-agent/pkg/tracing"
)

const (
	anthropicName     = "AnthropicEngine"
	anthropicTracer   = "ai.anthropic"
	anthropicEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion  = "2023-06-01"

	decisionToolName = "submit_decision"
	startURLToolName = "set_initial_url"
)

type AnthropicEngine struct {
	config     *config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
	httpClient *http.Client
	pacer      *rate.Limiter
	retry      retryPolicy
	endpoint   string
}

func NewAnthropicEngine(params Params) *AnthropicEngine {
	endpoint := params.Config.AIConfig.Endpoint
	if endpoint == "" {
		endpoint = anthropicEndpoint
	}

	return &AnthropicEngine{
		config:     params.Config,
		logger:     params.Logger.With(zap.String(logg.Layer, anthropicName)),
		tracer:     otel.Tracer(anthropicTracer),
		httpClient: &http.Client{},
		pacer:      newPacer(params.Config.AIConfig),
		retry:      newRetryPolicy(params.Config.AIConfig),
		endpoint:   endpoint,
	}
}

type claudeRequest struct {
	Model      string          `json:"model"`
	MaxTokens  int             `json:"max_tokens"`
	System     string          `json:"system,omitempty"`
	Messages   []claudeMessage `json:"messages"`
	Tools      []claudeTool    `json:"tools,omitempty"`
	ToolChoice *toolChoice     `json:"tool_choice,omitempty"`
}

type claudeMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type claudeTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

type contentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type claudeResponse struct {
	Content []struct {
		Type  string                 `json:"type"`
		Text  string                 `json:"text,omitempty"`
		Name  string                 `json:"name,omitempty"`
		Input map[string]interface{} `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (e *AnthropicEngine) InitialURL(ctx context.Context, task string) (url string, err error) {
	const op = "InitialURL"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	req := claudeRequest{
		Model:     e.config.AIConfig.Model,
		MaxTokens: e.config.AIConfig.MaxTokens,
		Messages: []claudeMessage{{
			Role:    "user",
			Content: fmt.Sprintf(initialURLPrompt, task),
		}},
		Tools: []claudeTool{{
			Name:        startURLToolName,
			Description: "Report the URL the task should start from",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"url": map[string]interface{}{"type": "string"},
				},
				"required": []string{"url"},
			},
		}},
		ToolChoice: &toolChoice{Type: "tool", Name: startURLToolName},
	}

	resp, err := e.send(ctx, logger, op, &req)
	if err != nil {
		return "", err
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" || block.Name != startURLToolName {
			continue
		}
		if u, ok := block.Input["url"].(string); ok && strings.TrimSpace(u) != "" {
			return strings.TrimSpace(u), nil
		}
	}

	return "", apperr.DecisionParse(op, fmt.Errorf("no url in response"), "missing_initial_url")
}

func (e *AnthropicEngine) EndState(ctx context.Context, task string) (criterion string, err error) {
	const op = "EndState"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	req := claudeRequest{
		Model:     e.config.AIConfig.Model,
		MaxTokens: e.config.AIConfig.MaxTokens,
		Messages: []claudeMessage{{
			Role:    "user",
			Content: fmt.Sprintf(endStatePrompt, task),
		}},
	}

	resp, err := e.send(ctx, logger, op, &req)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	criterion = strings.TrimSpace(sb.String())
	if criterion == "" {
		return "", apperr.DecisionParse(op, fmt.Errorf("empty criterion"), "missing_end_state")
	}

	return criterion, nil
}

func (e *AnthropicEngine) Decide(ctx context.Context, req *entity.DecisionRequest) (decision *entity.Decision, err error) {
	const op = "Decide"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, tracing.TaskAttr(req.Task))
	defer func() {
		step.End(err)
	}()

	screenshot, err := prepareScreenshot(req.Observation.Screenshot)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "screenshot_prepare_failed",
			apperr.MetaStage:  apperr.StageEngine,
		})
	}

	content := []contentBlock{
		{Type: "image", Source: &imageSource{Type: "base64", MediaType: "image/jpeg", Data: screenshot}},
		{Type: "text", Text: buildDecidePrompt(req)},
	}

	creq := claudeRequest{
		Model:     e.config.AIConfig.Model,
		MaxTokens: e.config.AIConfig.MaxTokens,
		System:    plannerSystemPrompt,
		Messages:  []claudeMessage{{Role: "user", Content: content}},
		Tools: []claudeTool{{
			Name:        decisionToolName,
			Description: "Submit the next action for the current page",
			InputSchema: decisionSchema,
		}},
		ToolChoice: &toolChoice{Type: "tool", Name: decisionToolName},
	}

	resp, err := e.send(ctx, logger, op, &creq)
	if err != nil {
		return nil, err
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == decisionToolName {
			return decodeDecisionMap(op, block.Input)
		}
	}

	return nil, apperr.DecisionParse(op, fmt.Errorf("no %s tool call in response", decisionToolName), "missing_tool_call")
}

// send posts one request under the shared pacing and retry policy.
func (e *AnthropicEngine) send(ctx context.Context, logger *zap.Logger, op string, req *claudeRequest) (*claudeResponse, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "pacer_wait_failed",
			apperr.MetaStage:  apperr.StageEngine,
		})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "marshal_failed",
			apperr.MetaStage:  apperr.StageEngine,
		})
	}

	var resp claudeResponse

	attempt := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", e.config.AIConfig.APIKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

		httpResp, err := e.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		if httpResp.StatusCode != http.StatusOK {
			return &upstreamError{Status: httpResp.StatusCode, Body: string(body)}
		}

		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}

		return nil
	}

	if err := callWithRetry(ctx, logger, e.retry, attempt); err != nil {
		return nil, wrapEngineErr(op, ProviderAnthropic, err)
	}

	return &resp, nil
}
