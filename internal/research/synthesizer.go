package research

import (
	"context"
	"errors"
)

const synthesisMaxOutputTokens = 2000

type LLMSynthesizer struct {
	responder PromptResponder
	estimator Estimator
}

func NewLLMSynthesizer(responder PromptResponder, cfg Config) LLMSynthesizer {
	return LLMSynthesizer{responder: responder, estimator: NewEstimator(cfg)}
}

// Synthesize makes one LLM call over every successful result. onDelta, when
// set, receives the prose as it streams; the JSON self-assessment is never
// forwarded. The returned Synthesis carries the call's cost even on a parse
// failure.
func (s LLMSynthesizer) Synthesize(ctx context.Context, query string, results []SearchResult, onDelta func(string)) (Synthesis, error) {
	if s.responder == nil {
		return Synthesis{}, newError(CodeSynthesisFailed, "synthesize", errors.New("synthesis responder unavailable"))
	}

	sources := numberedSources(results)
	prompt := Prompt{
		System:    synthesisSystemPrompt,
		User:      buildSynthesisPrompt(query, results, sources),
		MaxTokens: synthesisMaxOutputTokens,
	}
	var streamer *proseStreamer
	if onDelta != nil {
		streamer = newProseStreamer(onDelta)
		prompt.OnDelta = func(delta string) error {
			streamer.Write(delta)
			return nil
		}
	}

	response, err := s.responder.Respond(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Synthesis{}, newError(CodeTimeout, "synthesize", err)
		}
		return Synthesis{}, newError(CodeSynthesisFailed, "synthesize", err)
	}
	streamer.Flush()
	cost := s.estimator.ResponseCost(response.Usage, s.estimator.SynthesisCost())

	synthesis, err := ParseSynthesis(response.Text)
	if err != nil {
		return Synthesis{Cost: cost}, newError(CodeSynthesisFailed, "synthesize", err)
	}
	synthesis.Sources = sources
	synthesis.Cost = cost
	return synthesis, nil
}
