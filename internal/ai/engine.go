// Package ai implements the decision engine clients. One engine is active
// per run, selected by AI_PROVIDER; all providers share prompt rendering,
// screenshot preparation, request pacing and the retry policy.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"web-task-agent/internal/config"
	"web-task-agent/internal/ports"
	"web-task-agent/pkg/apperr"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"

	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 30 * time.Second
)

type Params struct {
	fx.In

	Config *config.Config
	Logger *zap.Logger
}

// NewEngine picks the decision engine for the configured provider.
func NewEngine(params Params) (ports.DecisionEngine, error) {
	provider := strings.ToLower(strings.TrimSpace(params.Config.AIConfig.Provider))

	switch provider {
	case ProviderAnthropic:
		return NewAnthropicEngine(params), nil
	case ProviderOpenAI:
		return NewOpenAIEngine(params), nil
	case ProviderGemini:
		return NewGeminiEngine(params), nil
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", params.Config.AIConfig.Provider)
	}
}

// newPacer spaces outbound engine calls so a chatty run stays inside the
// provider quota instead of bouncing off it.
func newPacer(cfg *config.AIConfig) *rate.Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
}

// upstreamError carries the HTTP status of a failed provider call so the
// retry policy can tell transient failures from permanent ones.
type upstreamError struct {
	Status int
	Body   string
}

func (e *upstreamError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}

	return fmt.Sprintf("upstream status %d: %s", e.Status, body)
}

func isTransient(err error) bool {
	var ue *upstreamError
	if !errors.As(err, &ue) {
		return false
	}

	switch ue.Status {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return true
	}

	return false
}

func isRateLimited(err error) bool {
	var ue *upstreamError

	return errors.As(err, &ue) && ue.Status == http.StatusTooManyRequests
}

type retryPolicy struct {
	initial    time.Duration
	maxBackoff time.Duration
	maxElapsed time.Duration
}

func newRetryPolicy(cfg *config.AIConfig) retryPolicy {
	return retryPolicy{
		initial:    retryInitialInterval,
		maxBackoff: retryMaxInterval,
		maxElapsed: cfg.RetryMaxElapsed(),
	}
}

// callWithRetry runs fn under bounded exponential backoff. Transient
// upstream errors (429/500/503) are retried until the elapsed budget runs
// out; everything else fails immediately.
func callWithRetry(ctx context.Context, logger *zap.Logger, policy retryPolicy, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = policy.initial
	b.MaxInterval = policy.maxBackoff
	b.MaxElapsedTime = policy.maxElapsed

	operation := func() error {
		err := fn()
		if err == nil {
			return nil
		}

		if isTransient(err) {
			logger.Warn("Transient engine error, backing off", zap.Error(err))

			return err
		}

		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

// wrapEngineErr maps an exhausted provider call onto the error taxonomy:
// 429 becomes rate_limited, everything else engine_error.
func wrapEngineErr(op string, provider string, err error) error {
	code := apperr.CodeEngine
	if isRateLimited(err) {
		code = apperr.CodeRateLimited
	}

	return apperr.Wrap(op, code, err, map[string]any{
		apperr.MetaStage:    apperr.StageEngine,
		apperr.MetaProvider: provider,
	})
}
