package research

import (
	"context"
	"time"

	"brandhub/backend/internal/brave"
)

type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

func ParseComplexity(raw string) (Complexity, bool) {
	switch Complexity(raw) {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return Complexity(raw), true
	default:
		return "", false
	}
}

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight orders priorities for truncation and gap promotion.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusPartial   Status = "partial"
	StatusFailed    Status = "failed"
)

type SubQuestion struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Reasoning string   `json:"reasoning,omitempty"`
	Priority  Priority `json:"priority"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type SearchResult struct {
	SubQuestionID string   `json:"subQuestionId"`
	Query         string   `json:"query"`
	Summary       string   `json:"summary"`
	Sources       []Source `json:"sources"`
	CostIncurred  float64  `json:"costIncurred"`
	Failed        bool     `json:"failed,omitempty"`
}

type Gap struct {
	Description    string   `json:"description"`
	SuggestedQuery string   `json:"suggestedQuery"`
	Priority       Priority `json:"priority"`
}

type Synthesis struct {
	AnswerText string   `json:"answerText"`
	Confidence float64  `json:"confidence"`
	Gaps       []Gap    `json:"gaps"`
	Sources    []Source `json:"sources"`
	Cost       float64  `json:"cost"`
}

type Round struct {
	Index         int            `json:"index"`
	SubQuestions  []SubQuestion  `json:"subQuestions"`
	SearchResults []SearchResult `json:"searchResults"`
	Synthesis     *Synthesis     `json:"synthesis,omitempty"`
	Failed        bool           `json:"failed,omitempty"`
	Discarded     bool           `json:"discarded,omitempty"`
}

type Session struct {
	ID              string     `json:"id"`
	Query           string     `json:"query"`
	Complexity      Complexity `json:"complexity"`
	UseProModel     bool       `json:"useProModel"`
	Status          Status     `json:"status"`
	Code            ErrorCode  `json:"code,omitempty"`
	Message         string     `json:"message"`
	RoundsCompleted int        `json:"roundsCompleted"`
	AccumulatedCost float64    `json:"accumulatedCost"`
	EstimatedCost   float64    `json:"estimatedCost"`
	StartedAt       time.Time  `json:"startedAt"`
	FinishedAt      time.Time  `json:"finishedAt"`
	Rounds          []Round    `json:"rounds"`
	Warnings        []string   `json:"warnings,omitempty"`
	Answer          Answer     `json:"answer"`
}

// Answer is the final payload handed back to callers.
type Answer struct {
	AnswerText      string   `json:"answerText"`
	Sources         []Source `json:"sources"`
	Confidence      float64  `json:"confidence"`
	RoundsCompleted int      `json:"roundsCompleted"`
	CostIncurred    float64  `json:"costIncurred"`
}

func (s *Session) Duration() time.Duration {
	if s == nil || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

type Searcher interface {
	Search(ctx context.Context, query string, opts brave.SearchOptions) ([]brave.SearchResult, error)
}

type Planner interface {
	Plan(ctx context.Context, query string, complexity Complexity, existingContext string) (Plan, error)
}

type Plan struct {
	SubQuestions []SubQuestion
	Cost         float64
}

type Synthesizer interface {
	Synthesize(ctx context.Context, query string, results []SearchResult, onDelta func(string)) (Synthesis, error)
}

// Prompt is one single-attempt LLM call. OnDelta, when set, receives streamed
// content as it arrives.
type Prompt struct {
	System    string
	User      string
	MaxTokens int
	OnDelta   func(string) error
}

type Response struct {
	Text  string
	Usage *Usage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	HasCost      bool
}

type PromptResponder interface {
	Respond(ctx context.Context, prompt Prompt) (Response, error)
}
