package httpapi

import (
	"context"
	"errors"
	"strings"

	"brandhub/backend/internal/openrouter"
	"brandhub/backend/internal/research"
)

type chatStreamer interface {
	StreamChatCompletion(ctx context.Context, req openrouter.StreamRequest, handlers openrouter.StreamHandlers) error
}

type openRouterResponder struct {
	streamer        chatStreamer
	modelID         string
	reasoningEffort string
}

// NewOpenRouterResponder adapts a streaming chat client to the research
// pipeline's single-call prompt contract. It returns nil when no model is set.
func NewOpenRouterResponder(streamer chatStreamer, modelID, reasoningEffort string) research.PromptResponder {
	if streamer == nil || strings.TrimSpace(modelID) == "" {
		return nil
	}
	return openRouterResponder{
		streamer:        streamer,
		modelID:         strings.TrimSpace(modelID),
		reasoningEffort: strings.TrimSpace(reasoningEffort),
	}
}

func (r openRouterResponder) Respond(ctx context.Context, prompt research.Prompt) (research.Response, error) {
	if strings.TrimSpace(prompt.User) == "" {
		return research.Response{}, errors.New("prompt is empty")
	}

	messages := make([]openrouter.Message, 0, 2)
	if system := strings.TrimSpace(prompt.System); system != "" {
		messages = append(messages, openrouter.Message{Role: "system", Content: system})
	}
	messages = append(messages, openrouter.Message{Role: "user", Content: prompt.User})

	var (
		out   strings.Builder
		usage *research.Usage
	)
	handlers := openrouter.StreamHandlers{
		OnDelta: func(delta string) error {
			out.WriteString(delta)
			if prompt.OnDelta != nil {
				return prompt.OnDelta(delta)
			}
			return nil
		},
		OnUsage: func(reported openrouter.Usage) error {
			converted := research.Usage{
				InputTokens:  reported.PromptTokens,
				OutputTokens: reported.CompletionTokens,
			}
			converted.CostUSD, converted.HasCost = reported.CostUSD()
			usage = &converted
			return nil
		},
	}
	err := r.streamer.StreamChatCompletion(ctx, openrouter.StreamRequest{
		Model:     r.modelID,
		Messages:  messages,
		Reasoning: openRouterReasoningConfig(r.reasoningEffort),
		MaxTokens: prompt.MaxTokens,
	}, handlers)
	if err != nil {
		return research.Response{}, err
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return research.Response{}, errors.New("model response was empty")
	}
	return research.Response{Text: text, Usage: usage}, nil
}

func openRouterReasoningConfig(effort string) *openrouter.ReasoningConfig {
	switch strings.ToLower(strings.TrimSpace(effort)) {
	case "low", "medium", "high":
		return &openrouter.ReasoningConfig{Effort: strings.ToLower(strings.TrimSpace(effort))}
	default:
		return nil
	}
}
