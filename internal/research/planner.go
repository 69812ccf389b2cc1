package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const (
	maxSubQuestions        = 5
	plannerMaxOutputTokens = 800
)

type LLMPlanner struct {
	responder    PromptResponder
	estimator    Estimator
	maxQuestions int
}

func NewLLMPlanner(responder PromptResponder, cfg Config) LLMPlanner {
	maxQuestions := cfg.MaxQueriesPerRound
	if maxQuestions <= 0 || maxQuestions > maxSubQuestions {
		maxQuestions = maxSubQuestions
	}
	return LLMPlanner{
		responder:    responder,
		estimator:    NewEstimator(cfg),
		maxQuestions: maxQuestions,
	}
}

// Plan makes one LLM call and validates the reply. The returned Plan carries
// the call's cost even when validation fails.
func (p LLMPlanner) Plan(ctx context.Context, query string, complexity Complexity, existingContext string) (Plan, error) {
	if p.responder == nil {
		return Plan{}, newError(CodePlanningFailed, "plan", errors.New("planner responder unavailable"))
	}

	response, err := p.responder.Respond(ctx, Prompt{
		System:    plannerSystemPrompt,
		User:      buildPlannerPrompt(query, complexity, existingContext, p.maxQuestions),
		MaxTokens: plannerMaxOutputTokens,
	})
	if err != nil {
		return Plan{}, newError(CodePlanningFailed, "plan", err)
	}
	plan := Plan{Cost: p.estimator.ResponseCost(response.Usage, p.estimator.PlanningCost())}

	parsed, err := ParsePlan(response.Text)
	if err != nil {
		return plan, newError(CodePlanningFailed, "plan", err)
	}
	subQuestions, err := validateSubQuestions(parsed, p.maxQuestions)
	if err != nil {
		return plan, newError(CodePlanningFailed, "plan", err)
	}
	plan.SubQuestions = subQuestions
	return plan, nil
}

// validateSubQuestions enforces the plan shape. Dependencies may only point
// at earlier ids, which also rules out cycles.
func validateSubQuestions(items []SubQuestion, maxQuestions int) ([]SubQuestion, error) {
	if len(items) == 0 {
		return nil, errors.New("plan has no sub-questions")
	}
	if maxQuestions > 0 && len(items) > maxQuestions {
		items = items[:maxQuestions]
	}

	out := make([]SubQuestion, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			id = fmt.Sprintf("q%d", i+1)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("duplicate sub-question id %q", id)
		}

		question := strings.Join(strings.Fields(item.Question), " ")
		if question == "" {
			return nil, fmt.Errorf("sub-question %q has no question text", id)
		}

		if item.Priority.Weight() == 0 {
			return nil, fmt.Errorf("sub-question %q has invalid priority %q", id, item.Priority)
		}

		deps := make([]string, 0, len(item.DependsOn))
		for _, dep := range item.DependsOn {
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			if _, ok := seen[dep]; !ok {
				return nil, fmt.Errorf("sub-question %q depends on %q which is not planned earlier", id, dep)
			}
			deps = append(deps, dep)
		}

		seen[id] = struct{}{}
		out = append(out, SubQuestion{
			ID:        id,
			Question:  question,
			Reasoning: strings.TrimSpace(item.Reasoning),
			Priority:  item.Priority,
			DependsOn: deps,
		})
	}
	return out, nil
}

// singleSubQuestion is the plan used when planning is skipped or fails.
func singleSubQuestion(query, reasoning string) []SubQuestion {
	return []SubQuestion{{
		ID:        "q1",
		Question:  strings.Join(strings.Fields(query), " "),
		Reasoning: reasoning,
		Priority:  PriorityHigh,
	}}
}
