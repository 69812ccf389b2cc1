package httpapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandhub/backend/internal/openrouter"
	"brandhub/backend/internal/research"
)

type stubStreamer struct {
	deltas []string
	usage  *openrouter.Usage
	err    error
	req    openrouter.StreamRequest
}

func (s *stubStreamer) StreamChatCompletion(_ context.Context, req openrouter.StreamRequest, handlers openrouter.StreamHandlers) error {
	s.req = req
	if s.err != nil {
		return s.err
	}
	for _, delta := range s.deltas {
		if err := handlers.OnDelta(delta); err != nil {
			return err
		}
	}
	if s.usage != nil {
		return handlers.OnUsage(*s.usage)
	}
	return nil
}

func TestOpenRouterResponderForwardsDeltasAndUsage(t *testing.T) {
	costMicros := 4200
	streamer := &stubStreamer{
		deltas: []string{"Paris ", "is the capital."},
		usage:  &openrouter.Usage{PromptTokens: 900, CompletionTokens: 120, TotalTokens: 1020, CostMicrosUSD: &costMicros},
	}
	responder := NewOpenRouterResponder(streamer, " anthropic/claude-sonnet-4 ", "High")
	require.NotNil(t, responder)

	var streamed []string
	resp, err := responder.Respond(context.Background(), research.Prompt{
		System:    "Answer with citations.",
		User:      "Capital of France?",
		MaxTokens: 512,
		OnDelta: func(delta string) error {
			streamed = append(streamed, delta)
			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "Paris is the capital.", resp.Text)
	assert.Equal(t, []string{"Paris ", "is the capital."}, streamed)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, research.Usage{InputTokens: 900, OutputTokens: 120, CostUSD: 0.0042, HasCost: true}, *resp.Usage)

	assert.Equal(t, "anthropic/claude-sonnet-4", streamer.req.Model)
	assert.Equal(t, 512, streamer.req.MaxTokens)
	require.NotNil(t, streamer.req.Reasoning)
	assert.Equal(t, "high", streamer.req.Reasoning.Effort)
	require.Len(t, streamer.req.Messages, 2)
	assert.Equal(t, "system", streamer.req.Messages[0].Role)
	assert.Equal(t, "user", streamer.req.Messages[1].Role)
}

func TestOpenRouterResponderWithoutProviderCost(t *testing.T) {
	streamer := &stubStreamer{
		deltas: []string{"{}"},
		usage:  &openrouter.Usage{PromptTokens: 10, CompletionTokens: 2},
	}
	resp, err := NewOpenRouterResponder(streamer, "model", "").Respond(context.Background(), research.Prompt{User: "plan"})

	require.NoError(t, err)
	require.NotNil(t, resp.Usage)
	assert.False(t, resp.Usage.HasCost)
	assert.Nil(t, streamer.req.Reasoning)
	require.Len(t, streamer.req.Messages, 1, "empty system prompts are not sent")
}

func TestOpenRouterResponderErrors(t *testing.T) {
	upstream := openrouter.StatusError{StatusCode: 429, Body: "slow down"}
	_, err := NewOpenRouterResponder(&stubStreamer{err: upstream}, "model", "").Respond(context.Background(), research.Prompt{User: "plan"})
	var statusErr openrouter.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.True(t, statusErr.RateLimited())

	_, err = NewOpenRouterResponder(&stubStreamer{deltas: []string{"  "}}, "model", "").Respond(context.Background(), research.Prompt{User: "plan"})
	assert.EqualError(t, err, "model response was empty")

	_, err = NewOpenRouterResponder(&stubStreamer{}, "model", "").Respond(context.Background(), research.Prompt{User: " "})
	assert.Error(t, err)

	stop := errors.New("client gone")
	_, err = NewOpenRouterResponder(&stubStreamer{deltas: []string{"a"}}, "model", "").Respond(context.Background(), research.Prompt{
		User:    "plan",
		OnDelta: func(string) error { return stop },
	})
	assert.ErrorIs(t, err, stop)
}

func TestNewOpenRouterResponderNeedsModel(t *testing.T) {
	assert.Nil(t, NewOpenRouterResponder(&stubStreamer{}, "  ", ""))
	assert.Nil(t, NewOpenRouterResponder(nil, "model", ""))
}

func TestOpenRouterReasoningConfig(t *testing.T) {
	assert.Nil(t, openRouterReasoningConfig(""))
	assert.Nil(t, openRouterReasoningConfig("extreme"))
	assert.Equal(t, &openrouter.ReasoningConfig{Effort: "medium"}, openRouterReasoningConfig(" Medium "))
}
