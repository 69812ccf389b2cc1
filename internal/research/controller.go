package research

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RoundState is the slice of session state the continuation gate reads.
type RoundState struct {
	RoundsCompleted int
	AccumulatedCost float64
	Elapsed         time.Duration
}

// Decision is the round controller's verdict after a synthesis. When
// Continue is false, Status and Code describe how the session ends.
type Decision struct {
	Continue bool
	Status   Status
	Code     ErrorCode
}

type RoundController struct {
	cfg Config
}

func NewRoundController(cfg Config) RoundController {
	return RoundController{cfg: cfg}
}

// ShouldContinue is true only when another round is both wanted and allowed.
func (c RoundController) ShouldContinue(state RoundState, synthesis Synthesis) bool {
	return c.Decide(state, synthesis).Continue
}

// Decide checks quality first: a confident answer, no gaps, or an exhausted
// round allowance completes the session. Otherwise budget and time decide
// between another round and a partial result.
func (c RoundController) Decide(state RoundState, synthesis Synthesis) Decision {
	switch {
	case synthesis.Confidence >= c.cfg.MinConfidenceToComplete:
		return Decision{Status: StatusCompleted}
	case len(synthesis.Gaps) == 0:
		return Decision{Status: StatusCompleted}
	case state.RoundsCompleted >= c.cfg.MaxRounds:
		return Decision{Status: StatusCompleted}
	case state.AccumulatedCost+costEpsilon >= c.cfg.MaxTotalCost:
		return Decision{Status: StatusPartial, Code: CodeCostLimitExceeded}
	case c.cfg.Timeout > 0 && state.Elapsed >= c.cfg.Timeout:
		return Decision{Status: StatusPartial, Code: CodeTimeout}
	default:
		return Decision{Continue: true, Status: StatusRunning}
	}
}

// SelectGaps stable-sorts gaps by priority weight and keeps the first limit.
func SelectGaps(gaps []Gap, limit int) []Gap {
	if limit <= 0 || len(gaps) == 0 {
		return nil
	}
	sorted := append([]Gap(nil), gaps...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority.Weight() > sorted[j].Priority.Weight()
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// GapsToSubQuestions turns promoted gaps into dependency-free sub-questions
// for the given round.
func GapsToSubQuestions(round int, gaps []Gap) []SubQuestion {
	out := make([]SubQuestion, 0, len(gaps))
	for i, gap := range gaps {
		question := strings.TrimSpace(gap.SuggestedQuery)
		if question == "" {
			question = strings.TrimSpace(gap.Description)
		}
		if question == "" {
			continue
		}
		out = append(out, SubQuestion{
			ID:        fmt.Sprintf("r%d-g%d", round, i+1),
			Question:  question,
			Reasoning: strings.TrimSpace(gap.Description),
			Priority:  gap.Priority,
		})
	}
	return out
}
