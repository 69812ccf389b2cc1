package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandhub/backend/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.Config{OpenRouterAPIKey: "test-key", OpenRouterBaseURL: server.URL + "/"}, server.Client())
}

func planRequest() StreamRequest {
	return StreamRequest{Model: "anthropic/claude-sonnet-4", Messages: []Message{{Role: "user", Content: "plan the research"}}}
}

func TestStreamChatCompletionSendsRequestAndDeltas(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "anthropic/claude-sonnet-4", body["model"])
		assert.Equal(t, true, body["stream"])
		assert.EqualValues(t, 400, body["max_tokens"])
		assert.Equal(t, map[string]any{"include_usage": true}, body["stream_options"])
		assert.Equal(t, map[string]any{"effort": "high"}, body["reasoning"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Three \"}}]}\n\n")
		_, _ = io.WriteString(w, ": keep-alive\n\n")
		_, _ = io.WriteString(w, "data: not-json\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"subqueries\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\" ignored\"}}]}\n\n")
	})

	req := planRequest()
	req.MaxTokens = 400
	req.Reasoning = &ReasoningConfig{Effort: " high "}

	var out strings.Builder
	err := client.StreamChatCompletion(context.Background(), req, StreamHandlers{
		OnDelta: func(delta string) error {
			out.WriteString(delta)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Three subqueries", out.String())
}

func TestStreamChatCompletionReportsUsage(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "data: {\"choices\":[],\"usage\":{\"prompt_tokens\":120,\"completion_tokens\":45,\"total_tokens\":165,\"completion_tokens_details\":{\"reasoning_tokens\":12},\"cost\":\"0.000420\"}}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	var usage Usage
	err := client.StreamChatCompletion(context.Background(), planRequest(), StreamHandlers{
		OnUsage: func(next Usage) error {
			usage = next
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 120, usage.PromptTokens)
	assert.Equal(t, 45, usage.CompletionTokens)
	assert.Equal(t, 165, usage.TotalTokens)
	require.NotNil(t, usage.ReasoningTokens)
	assert.Equal(t, 12, *usage.ReasoningTokens)

	cost, ok := usage.CostUSD()
	require.True(t, ok)
	assert.InDelta(t, 0.00042, cost, 1e-9)
}

func TestStreamChatCompletionRateLimit(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	})

	err := client.StreamChatCompletion(context.Background(), planRequest(), StreamHandlers{})

	var statusErr StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.RateLimited())
	assert.Equal(t, 7*time.Second, statusErr.RetryAfter)
	assert.Contains(t, statusErr.Error(), "slow down")
}

func TestStreamChatCompletionSurfacesInlineError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "data: {\"error\":{\"message\":\"provider overloaded\"}}\n\n")
	})

	err := client.StreamChatCompletion(context.Background(), planRequest(), StreamHandlers{})
	require.EqualError(t, err, "provider overloaded")
}

func TestStreamChatCompletionHandlerErrorStopsStream(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
	})

	stop := io.ErrClosedPipe
	calls := 0
	err := client.StreamChatCompletion(context.Background(), planRequest(), StreamHandlers{
		OnDelta: func(string) error {
			calls++
			return stop
		},
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamChatCompletionValidatesRequest(t *testing.T) {
	t.Parallel()

	noKey := NewClient(config.Config{OpenRouterBaseURL: "https://openrouter.ai/api/v1"}, nil)
	require.ErrorIs(t, noKey.StreamChatCompletion(context.Background(), planRequest(), StreamHandlers{}), ErrMissingAPIKey)

	client := NewClient(config.Config{OpenRouterAPIKey: "k", OpenRouterBaseURL: "https://openrouter.ai/api/v1"}, nil)
	require.EqualError(t, client.StreamChatCompletion(context.Background(), StreamRequest{Messages: planRequest().Messages}, StreamHandlers{}), "model is required")
	require.EqualError(t, client.StreamChatCompletion(context.Background(), StreamRequest{Model: "m"}, StreamHandlers{}), "messages are required")
}

func TestListModelsFallsBackToPublicCatalogue(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models/user" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[
		  {"id":"anthropic/claude-sonnet-4","name":"Claude Sonnet 4",
		   "supported_parameters":["Reasoning","tools"],
		   "top_provider":{"context_length":200000},
		   "pricing":{"prompt":"0.000003","completion":0.000015}},
		  {"id":"openai/gpt-4o-mini","pricing":{"prompt":null,"completion":"-1"}},
		  {"id":"","name":"skipped"}
		]}`)
	})

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)

	sonnet, ok := FindModel(models, " anthropic/claude-sonnet-4 ")
	require.True(t, ok)
	assert.Equal(t, 3, sonnet.PromptPriceMicrosUSD)
	assert.Equal(t, 15, sonnet.CompletionPriceMicrosUSD)
	assert.Equal(t, 200000, sonnet.ContextWindow)
	assert.True(t, sonnet.SupportsReasoning)

	mini, ok := FindModel(models, "openai/gpt-4o-mini")
	require.True(t, ok)
	assert.Equal(t, "openai/gpt-4o-mini", mini.Name)
	assert.Zero(t, mini.PromptPriceMicrosUSD)
	assert.Zero(t, mini.CompletionPriceMicrosUSD)
	assert.False(t, mini.SupportsReasoning)

	_, ok = FindModel(models, "missing/model")
	assert.False(t, ok)
}

func TestListModelsPropagatesAuthFailure(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.ListModels(context.Background())
	var statusErr StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.False(t, statusErr.RateLimited())
}

func TestUSDToMicros(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		raw    string
		micros int
		ok     bool
	}{
		"string":   {raw: `"0.000003"`, micros: 3, ok: true},
		"number":   {raw: `0.5`, micros: 500000, ok: true},
		"fraction": {raw: `"1/2"`, micros: 500000, ok: true},
		"negative": {raw: `"-1"`},
		"garbage":  {raw: `"abc"`},
		"null":     {raw: `null`},
		"empty":    {raw: ``},
	}
	for name, tc := range cases {
		micros, ok := usdToMicros(json.RawMessage(tc.raw))
		assert.Equal(t, tc.ok, ok, name)
		assert.Equal(t, tc.micros, micros, name)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3*time.Second, parseRetryAfter(" 3 "))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
	assert.Zero(t, parseRetryAfter("-2"))
}
