package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"web-task-agent/internal/entity"
)

func newTestGemini(t *testing.T, endpoint string) *GeminiEngine {
	t.Helper()

	cfg := testConfig(endpoint)
	cfg.AIConfig.Provider = ProviderGemini

	e := NewGeminiEngine(Params{Config: cfg, Logger: zap.NewNop()})
	e.retry.initial = time.Millisecond
	e.retry.maxBackoff = 5 * time.Millisecond

	return e
}

func geminiBody(text string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{"parts": []map[string]interface{}{{"text": text}}}},
		},
	}
}

func TestGeminiDecide(t *testing.T) {
	var gotReq geminiRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(geminiBody(`{"action": "navigate", "url": "https://example.com/cart", "reasoning": "open the cart", "completed": false}`))
	}))
	defer srv.Close()

	e := newTestGemini(t, srv.URL)

	decision, err := e.Decide(context.Background(), &entity.DecisionRequest{
		Task:        "open the cart",
		Observation: &entity.PageState{Screenshot: tinyJPEG(t, 32, 32)},
	})

	require.NoError(t, err)
	assert.Equal(t, "navigate", decision.Action)
	assert.Equal(t, "https://example.com/cart", decision.URL)

	// JSON mode plus inline screenshot must be on the wire.
	require.NotNil(t, gotReq.GenerationConfig)
	assert.Equal(t, "application/json", gotReq.GenerationConfig.ResponseMimeType)
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 2)
	require.NotNil(t, gotReq.Contents[0].Parts[0].InlineData)
	assert.Equal(t, "image/jpeg", gotReq.Contents[0].Parts[0].InlineData.MimeType)
}

func TestGeminiRetriesServerError(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		_ = json.NewEncoder(w).Encode(geminiBody("A pizza order confirmation is visible."))
	}))
	defer srv.Close()

	e := newTestGemini(t, srv.URL)

	criterion, err := e.EndState(context.Background(), "order a pizza")

	require.NoError(t, err)
	assert.Equal(t, "A pizza order confirmation is visible.", criterion)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGeminiInitialURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiBody(`{"url": "https://example.com"}`))
	}))
	defer srv.Close()

	e := newTestGemini(t, srv.URL)

	url, err := e.InitialURL(context.Background(), "task")

	require.NoError(t, err)
	assert.Equal(t, "https://example.com", url)
}
