package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	doneSentinel      = "[DONE]"
	maxStreamLineSize = 1024 * 1024
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ReasoningConfig struct {
	Effort string `json:"effort,omitempty"`
}

type StreamRequest struct {
	Model       string
	Messages    []Message
	Reasoning   *ReasoningConfig
	MaxTokens   int
	Temperature *float64
}

// Usage is the token and billing report sent once at the end of a stream.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ReasoningTokens  *int
	CostMicrosUSD    *int
}

// CostUSD reports the provider-billed cost when present.
func (u Usage) CostUSD() (float64, bool) {
	if u.CostMicrosUSD == nil {
		return 0, false
	}
	return float64(*u.CostMicrosUSD) / 1_000_000, true
}

// StreamHandlers receives stream output. Either field may be nil. A non-nil
// error from a handler aborts the stream and is returned unchanged.
type StreamHandlers struct {
	OnDelta func(string) error
	OnUsage func(Usage) error
}

type completionBody struct {
	Model         string           `json:"model"`
	Messages      []Message        `json:"messages"`
	Reasoning     *ReasoningConfig `json:"reasoning,omitempty"`
	MaxTokens     int              `json:"max_tokens,omitempty"`
	Temperature   *float64         `json:"temperature,omitempty"`
	Stream        bool             `json:"stream"`
	StreamOptions struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens            int             `json:"prompt_tokens"`
		CompletionTokens        int             `json:"completion_tokens"`
		TotalTokens             int             `json:"total_tokens"`
		Cost                    json.RawMessage `json:"cost"`
		CompletionTokensDetails *struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StreamChatCompletion runs one streamed completion, forwarding content
// deltas and the closing usage report to handlers.
func (c Client) StreamChatCompletion(ctx context.Context, req StreamRequest, handlers StreamHandlers) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return errors.New("model is required")
	}
	if len(req.Messages) == 0 {
		return errors.New("messages are required")
	}

	body := completionBody{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
	body.StreamOptions.IncludeUsage = true
	if req.Reasoning != nil && strings.TrimSpace(req.Reasoning.Effort) != "" {
		body.Reasoning = &ReasoningConfig{Effort: strings.TrimSpace(req.Reasoning.Effort)}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal openrouter request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build openrouter request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.send(httpReq, "text/event-stream")
	if err != nil {
		var statusErr StatusError
		if errors.As(err, &statusErr) {
			return statusErr
		}
		return fmt.Errorf("request openrouter: %w", err)
	}
	defer resp.Body.Close()

	return decodeStream(resp.Body, handlers)
}

// decodeStream walks the SSE body until the done sentinel or EOF. Comment
// lines and undecodable chunks are skipped.
func decodeStream(body io.Reader, handlers StreamHandlers) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineSize)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(strings.TrimSpace(scanner.Text()), "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == doneSentinel {
			return nil
		}

		var chunk streamChunk
		if data == "" || json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if err := chunk.dispatch(handlers); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read openrouter stream: %w", err)
	}
	return nil
}

func (chunk streamChunk) dispatch(handlers StreamHandlers) error {
	if chunk.Usage != nil && handlers.OnUsage != nil {
		usage := Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
		if micros, ok := usdToMicros(chunk.Usage.Cost); ok {
			usage.CostMicrosUSD = &micros
		}
		if details := chunk.Usage.CompletionTokensDetails; details != nil {
			reasoning := details.ReasoningTokens
			usage.ReasoningTokens = &reasoning
		}
		if err := handlers.OnUsage(usage); err != nil {
			return err
		}
	}

	if chunk.Error != nil {
		if message := strings.TrimSpace(chunk.Error.Message); message != "" {
			return errors.New(message)
		}
	}

	if handlers.OnDelta == nil {
		return nil
	}
	for _, choice := range chunk.Choices {
		if choice.Delta.Content == "" {
			continue
		}
		if err := handlers.OnDelta(choice.Delta.Content); err != nil {
			return err
		}
	}
	return nil
}
