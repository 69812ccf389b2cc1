package research

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResults() []SearchResult {
	return []SearchResult{
		{
			SubQuestionID: "q1",
			Query:         "office vacancy",
			Summary:       "- Vacancy report: vacancy hit 20%",
			Sources: []Source{
				{Title: "Vacancy report", URL: "https://example.com/vacancy"},
				{Title: "Shared", URL: "https://example.com/shared"},
			},
		},
		{SubQuestionID: "q2", Query: "broken leg", Summary: searchFailedSummary, Failed: true},
		{
			SubQuestionID: "q3",
			Query:         "flex space",
			Summary:       "- Flex: flex space grew",
			Sources: []Source{
				{Title: "Shared", URL: "https://example.com/shared"},
				{Title: "Flex", URL: "https://example.com/flex"},
			},
		},
	}
}

func TestLLMSynthesizerNumbersSourcesAndParses(t *testing.T) {
	responder := newResponderStub(responderReply{
		text:  wellFormedSynthesis,
		usage: &Usage{InputTokens: 2000, OutputTokens: 500},
	})
	synthesizer := NewLLMSynthesizer(responder, DefaultConfig())

	synthesis, err := synthesizer.Synthesize(context.Background(), "remote work and offices", sampleResults(), nil)
	require.NoError(t, err)

	assert.Equal(t, []Source{
		{Title: "Vacancy report", URL: "https://example.com/vacancy"},
		{Title: "Shared", URL: "https://example.com/shared"},
		{Title: "Flex", URL: "https://example.com/flex"},
	}, synthesis.Sources)
	assert.InDelta(t, 0.62, synthesis.Confidence, 1e-9)
	assert.InDelta(t, 0.006+0.0075, synthesis.Cost, 1e-12)

	prompts := responder.Prompts()
	require.Len(t, prompts, 1)
	user := prompts[0].User
	assert.Equal(t, synthesisSystemPrompt, prompts[0].System)
	assert.Contains(t, user, "Note 1 (office vacancy)")
	assert.Contains(t, user, "Note 2 (flex space)")
	assert.Contains(t, user, "Sources: [2] [3]")
	assert.Contains(t, user, "[3] Flex - https://example.com/flex")
	assert.NotContains(t, user, "broken leg")
	assert.Nil(t, prompts[0].OnDelta)
}

func TestLLMSynthesizerStreamsProseOnly(t *testing.T) {
	responder := newResponderStub(responderReply{deltas: []string{
		"Offices emptied [1]",
		" as teams went remote.\n``",
		"`json\n{\"confidence\":0.9,",
		"\"gaps\":[]}\n```",
	}})
	synthesizer := NewLLMSynthesizer(responder, DefaultConfig())

	var streamed strings.Builder
	synthesis, err := synthesizer.Synthesize(context.Background(), "q", sampleResults(), func(delta string) {
		streamed.WriteString(delta)
	})
	require.NoError(t, err)

	assert.Equal(t, "Offices emptied [1] as teams went remote.\n", streamed.String())
	assert.Equal(t, "Offices emptied [1] as teams went remote.", synthesis.AnswerText)
	assert.InDelta(t, NewEstimator(DefaultConfig()).SynthesisCost(), synthesis.Cost, 1e-12)
}

func TestLLMSynthesizerSurfacesParseFailure(t *testing.T) {
	responder := newResponderStub(responderReply{text: "Prose only, no assessment.", usage: &Usage{CostUSD: 0.02, HasCost: true}})
	synthesizer := NewLLMSynthesizer(responder, DefaultConfig())

	synthesis, err := synthesizer.Synthesize(context.Background(), "q", sampleResults(), nil)
	require.Error(t, err)
	assert.Equal(t, CodeSynthesisFailed, CodeOf(err))
	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
	assert.InDelta(t, 0.02, synthesis.Cost, 1e-12, "tokens were still billed")
}

func TestLLMSynthesizerSurfacesCallFailure(t *testing.T) {
	synthesizer := NewLLMSynthesizer(newResponderStub(responderReply{err: errors.New("503")}), DefaultConfig())

	_, err := synthesizer.Synthesize(context.Background(), "q", nil, nil)
	assert.Equal(t, CodeSynthesisFailed, CodeOf(err))
}

func TestLLMSynthesizerReportsDeadlineAsTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	synthesizer := NewLLMSynthesizer(newResponderStub(responderReply{stall: true}), DefaultConfig())

	_, err := synthesizer.Synthesize(ctx, "q", sampleResults(), nil)
	require.Error(t, err)
	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuildSynthesisPromptWithNoResults(t *testing.T) {
	prompt := buildSynthesisPrompt("q", []SearchResult{{Failed: true, Summary: searchFailedSummary}}, nil)
	assert.Contains(t, prompt, "(no search returned results)")
}
