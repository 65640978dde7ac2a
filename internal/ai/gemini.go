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
	geminiName         = "GeminiEngine"
	geminiTracer       = "ai.gemini"
	geminiEndpointTmpl = "https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent"
)

type GeminiEngine struct {
	config     *config.Config
	logger     *zap.Logger
	tracer     trace.Tracer
	httpClient *http.Client
	pacer      *rate.Limiter
	retry      retryPolicy
	endpoint   string
}

func NewGeminiEngine(params Params) *GeminiEngine {
	endpoint := params.Config.AIConfig.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf(geminiEndpointTmpl, params.Config.AIConfig.Model)
	}

	return &GeminiEngine{
		config:     params.Config,
		logger:     params.Logger.With(zap.String(logg.Layer, geminiName)),
		tracer:     otel.Tracer(geminiTracer),
		httpClient: &http.Client{},
		pacer:      newPacer(params.Config.AIConfig),
		retry:      newRetryPolicy(params.Config.AIConfig),
		endpoint:   endpoint,
	}
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenConfig struct {
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	Temperature      float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (e *GeminiEngine) InitialURL(ctx context.Context, task string) (url string, err error) {
	const op = "InitialURL"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	req := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: fmt.Sprintf(initialURLPrompt, task) + "\n\n" + initialURLJSONHint}},
		}},
		GenerationConfig: &geminiGenConfig{
			ResponseMimeType: "application/json",
			MaxOutputTokens:  e.config.AIConfig.MaxTokens,
		},
	}

	text, err := e.send(ctx, logger, op, &req)
	if err != nil {
		return "", err
	}

	var out struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return "", apperr.DecisionParse(op, err, "initial_url_unmarshal_failed")
	}

	if strings.TrimSpace(out.URL) == "" {
		return "", apperr.DecisionParse(op, fmt.Errorf("no url in response"), "missing_initial_url")
	}

	return strings.TrimSpace(out.URL), nil
}

func (e *GeminiEngine) EndState(ctx context.Context, task string) (criterion string, err error) {
	const op = "EndState"
	logger := e.logger.With(zap.String(logg.Operation, op))

	ctx, step := tracing.StartSpan(ctx, e.tracer, logger, op, tracing.TaskAttr(task))
	defer func() {
		step.End(err)
	}()

	req := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: fmt.Sprintf(endStatePrompt, task)}},
		}},
		GenerationConfig: &geminiGenConfig{
			MaxOutputTokens: e.config.AIConfig.MaxTokens,
		},
	}

	text, err := e.send(ctx, logger, op, &req)
	if err != nil {
		return "", err
	}

	criterion = strings.TrimSpace(text)
	if criterion == "" {
		return "", apperr.DecisionParse(op, fmt.Errorf("empty criterion"), "missing_end_state")
	}

	return criterion, nil
}

func (e *GeminiEngine) Decide(ctx context.Context, req *entity.DecisionRequest) (decision *entity.Decision, err error) {
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

	greq := geminiRequest{
		SystemInstruction: &geminiContent{
			Parts: []geminiPart{{Text: plannerSystemPrompt}},
		},
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: screenshot}},
				{Text: buildDecidePrompt(req) + "\n\n" + decisionJSONHint},
			},
		}},
		GenerationConfig: &geminiGenConfig{
			ResponseMimeType: "application/json",
			MaxOutputTokens:  e.config.AIConfig.MaxTokens,
		},
	}

	text, err := e.send(ctx, logger, op, &greq)
	if err != nil {
		return nil, err
	}

	doc, ok := extractJSONObject(text)
	if !ok {
		return nil, apperr.DecisionParse(op, fmt.Errorf("no JSON object in response"), "missing_decision_json")
	}

	return decodeDecisionJSON(op, []byte(doc))
}

func (e *GeminiEngine) send(ctx context.Context, logger *zap.Logger, op string, req *geminiRequest) (string, error) {
	if err := e.pacer.Wait(ctx); err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "pacer_wait_failed",
			apperr.MetaStage:  apperr.StageEngine,
		})
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", apperr.Wrap(op, apperr.CodeInternal, err, map[string]any{
			apperr.MetaReason: "marshal_failed",
			apperr.MetaStage:  apperr.StageEngine,
		})
	}

	var text string

	attempt := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", e.config.AIConfig.APIKey)

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

		var resp geminiResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}

		if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("response has no candidates")
		}

		var sb strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
		text = sb.String()

		return nil
	}

	if err := callWithRetry(ctx, logger, e.retry, attempt); err != nil {
		return "", wrapEngineErr(op, ProviderGemini, err)
	}

	return text, nil
}
