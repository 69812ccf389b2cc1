package research

import (
	"fmt"
	"strings"
)

type Phase string

const (
	PhaseClassified     Phase = "classified"
	PhasePlanning       Phase = "planning"
	PhasePlanned        Phase = "planned"
	PhaseSearching      Phase = "searching"
	PhaseSearchComplete Phase = "search_complete"
	PhaseSynthesizing   Phase = "synthesizing"
	PhaseEvaluated      Phase = "evaluated"
	PhaseIterating      Phase = "iterating"
	PhaseFinalizing     Phase = "finalizing"
)

type ProgressDecision string

const (
	ProgressDecisionContinue ProgressDecision = "continue"
	ProgressDecisionFinalize ProgressDecision = "finalize"
	ProgressDecisionFallback ProgressDecision = "fallback"
)

type Progress struct {
	Phase         Phase            `json:"phase"`
	Message       string           `json:"message,omitempty"`
	Round         int              `json:"round,omitempty"`
	MaxRounds     int              `json:"maxRounds,omitempty"`
	Complexity    Complexity       `json:"complexity,omitempty"`
	SubQuestions  []SubQuestion    `json:"subQuestions,omitempty"`
	SubQuestionID string           `json:"subQuestionId,omitempty"`
	LegFailed     bool             `json:"legFailed,omitempty"`
	Completed     int              `json:"completed,omitempty"`
	Total         int              `json:"total,omitempty"`
	Confidence    float64          `json:"confidence,omitempty"`
	GapCount      int              `json:"gapCount,omitempty"`
	Cost          float64          `json:"cost"`
	Title         string           `json:"title,omitempty"`
	Detail        string           `json:"detail,omitempty"`
	IsQuickStep   bool             `json:"isQuickStep,omitempty"`
	Decision      ProgressDecision `json:"decision,omitempty"`
}

type ProgressSummary struct {
	Title       string
	Detail      string
	IsQuickStep bool
	Decision    ProgressDecision
}

type ProgressSummaryInput struct {
	Phase        Phase
	Message      string
	Complexity   Complexity
	Round        int
	QueryCount   int
	Completed    int
	Total        int
	LegFailed    bool
	Decision     ProgressDecision
	UsedFallback bool
}

func BuildProgressSummary(input ProgressSummaryInput) ProgressSummary {
	summary := ProgressSummary{}

	switch input.Phase {
	case PhaseClassified:
		summary.Title = "Sizing up the question"
		if input.Complexity != "" {
			summary.Detail = fmt.Sprintf("Treating this as a %s question", input.Complexity)
		}
		summary.IsQuickStep = true
	case PhasePlanning:
		summary.Title = "Planning research"
		summary.Detail = "Breaking the question into searchable parts"
	case PhasePlanned:
		if input.QueryCount == 1 {
			summary.Title = "Searching for the question directly"
			summary.IsQuickStep = true
		} else {
			summary.Title = fmt.Sprintf("Planned %d lines of research", input.QueryCount)
			summary.Detail = "Independent questions go first"
		}
	case PhaseSearching:
		if input.Round > 1 {
			summary.Title = "Filling gaps"
			summary.Detail = "Searching for what the first pass missed"
		} else if input.QueryCount <= 1 {
			summary.Title = "Searching the web"
			summary.IsQuickStep = true
		} else {
			summary.Title = "Searching in parallel"
			summary.Detail = fmt.Sprintf("Running %d searches", input.QueryCount)
		}
	case PhaseSearchComplete:
		summary.Title = fmt.Sprintf("Search %d of %d finished", input.Completed, input.Total)
		if input.LegFailed {
			summary.Detail = "This search failed; continuing with the others"
		}
		summary.IsQuickStep = !input.LegFailed
	case PhaseSynthesizing:
		summary.Title = "Drafting answer"
		summary.Detail = "Combining findings and citing sources"
	case PhaseEvaluated:
		summary.Title = "Checking answer quality"
		summary.Detail = "Deciding whether another round is worth it"
	case PhaseIterating:
		summary.Title = "Running a second round"
		summary.Detail = "Following up on the biggest gaps"
		summary.Decision = ProgressDecisionContinue
	case PhaseFinalizing:
		summary.Title = "Finalizing answer"
		summary.Detail = "Ordering citations and sending response"
		summary.Decision = ProgressDecisionFinalize
	default:
		summary.Title = strings.TrimSpace(input.Message)
	}

	if summary.Title == "" {
		summary.Title = "Working on your request"
	}
	if summary.IsQuickStep {
		summary.Detail = ""
	}

	if input.UsedFallback {
		summary.Decision = ProgressDecisionFallback
	} else if input.Decision != "" {
		summary.Decision = input.Decision
	}

	return summary
}

func WithProgressSummary(progress Progress, summaryInput ProgressSummaryInput) Progress {
	if summaryInput.Phase == "" {
		summaryInput.Phase = progress.Phase
	}
	if strings.TrimSpace(summaryInput.Message) == "" {
		summaryInput.Message = progress.Message
	}
	if summaryInput.Complexity == "" {
		summaryInput.Complexity = progress.Complexity
	}
	if summaryInput.Round == 0 {
		summaryInput.Round = progress.Round
	}
	if summaryInput.QueryCount == 0 {
		summaryInput.QueryCount = len(progress.SubQuestions)
	}
	if summaryInput.Total == 0 {
		summaryInput.Completed = progress.Completed
		summaryInput.Total = progress.Total
	}
	summaryInput.LegFailed = summaryInput.LegFailed || progress.LegFailed

	summary := BuildProgressSummary(summaryInput)
	progress.Title = summary.Title
	progress.Detail = summary.Detail
	progress.IsQuickStep = summary.IsQuickStep
	progress.Decision = summary.Decision
	return progress
}
