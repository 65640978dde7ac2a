package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
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
	openAIName   = "OpenAIEngine"
	openAITracer = "ai.openai"
)

// OpenAIEngine speaks the chat-completions dialect, so it also covers
// OpenAI-compatible gateways via AI_ENDPOINT.
type OpenAIEngine struct {
	config *config.Config
	logger *zap.Logger
	tracer trace.Tracer
	client *openai.Client
	pacer  *rate.Limiter
	retry  retryPolicy
}

func NewOpenAIEngine(params Params) *OpenAIEngine {
	cfg := openai.DefaultConfig(params.Config.AIConfig.APIKey)
	if params.Config.AIConfig.Endpoint != "" {
		cfg.BaseURL = params.Config.AIConfig.Endpoint
	}

	return &OpenAIEngine{
		config: params.Config,
		logger: params.Logger.With(zap.String(logg.Layer, openAIName)),
		tracer: otel.Tracer(openAITracer),
		client: openai.NewClientWithConfig(cfg),
		pacer:  newPacer(params.Config.AIConfig),
		retry:  newRetryPolicy(params.Config.AIConfig),
	}
}

func (e *OpenAIEngine) InitialURL(ctx context.Context, task string) (url string, err error) {
	const op = "InitialURL"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	req := openai.ChatCompletionRequest{
		Model:     e.config.AIConfig.Model,
		MaxTokens: e.config.AIConfig.MaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(initialURLPrompt, task) + "\n\n" + initialURLJSONHint,
		}},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	content, err := e.send(ctx, logger, op, req)
	if err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return "", apperr.DecisionParse(op, err, "initial_url_unmarshal_failed")
	}

	if strings.TrimSpace(out.URL) == "" {
		return "", apperr.DecisionParse(op, fmt.Errorf("no url in response"), "missing_initial_url")
	}

	return strings.TrimSpace(out.URL), nil
}

func (e *OpenAIEngine) EndState(ctx context.Context, task string) (criterion string, err error) {
	const op = "EndState"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	req := openai.ChatCompletionRequest{
		Model:     e.config.AIConfig.Model,
		MaxTokens: e.config.AIConfig.MaxTokens,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: fmt.Sprintf(endStatePrompt, task),
		}},
	}

	content, err := e.send(ctx, logger, op, req)
	if err != nil {
		return "", err
	}

	criterion = strings.TrimSpace(content)
	if criterion == "" {
		return "", apperr.DecisionParse(op, fmt.Errorf("empty criterion"), "missing_end_state")
	}

	return criterion, nil
}

func (e *OpenAIEngine) Decide(ctx context.Context, req *entity.DecisionRequest) (decision *entity.Decision, err error) {
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

	creq := openai.ChatCompletionRequest{
		Model:     e.config.AIConfig.Model,
		MaxTokens: e.config.AIConfig.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: plannerSystemPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/jpeg;base64," + screenshot,
							Detail: openai.ImageURLDetailAuto,
						},
					},
					{
						Type: openai.ChatMessagePartTypeText,
						Text: buildDecidePrompt(req) + "\n\n" + decisionJSONHint,
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	content, err := e.send(ctx, logger, op, creq)
	if err != nil {
		return nil, err
	}

	doc, ok := extractJSONObject(content)
	if !ok {
		return nil, apperr.DecisionParse(op, fmt.Errorf("no JSON object in response"), "missing_decision_json")
	}

	return decodeDecisionJSON(op, []byte(doc))
}

func (e *OpenAIEngine) send(ctx context.Context, logger *zap.Logger, op string, req openai.ChatCompletionRequest) (string, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "pacer_wait_failed",
			apperr.MetaStage:  apperr.StageEngine,
		})
	}

	var content string

	attempt := func() error {
		resp, err := e.client.CreateChatCompletion(ctx, req)
		if err != nil {
			var apiErr *openai.APIError
			if errors.As(err, &apiErr) {
				return &upstreamError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
			}

			return err
		}

		if len(resp.Choices) == 0 {
			return fmt.Errorf("response has no choices")
		}

		content = resp.Choices[0].Message.Content

		return nil
	}

	if err := callWithRetry(ctx, logger, e.retry, attempt); err != nil {
		return "", wrapEngineErr(op, ProviderOpenAI, err)
	}

	return content, nil
}
