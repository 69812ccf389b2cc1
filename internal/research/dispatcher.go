package research

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"brandhub/backend/internal/brave"
)

const (
	searchFailedSummary = "search failed"
	noResultsSummary    = "no results found"
)

// Dispatcher runs one round's searches with bounded concurrency.
type Dispatcher struct {
	searcher  Searcher
	cfg       Config
	estimator Estimator
	logger    *zap.Logger
}

func NewDispatcher(searcher Searcher, cfg Config, logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Dispatcher{
		searcher:  searcher,
		cfg:       cfg,
		estimator: NewEstimator(cfg),
		logger:    logger,
	}
}

type DispatchOutcome struct {
	// Results holds one entry per issued leg, in dispatch order.
	Results []SearchResult
	Issued  int
	Failed  int
	Skipped int
	Cost    float64
	// Tripped is set when the guard refused a leg. The round's results must
	// not be synthesized.
	Tripped ErrorCode
}

type LegUpdate struct {
	Result    SearchResult
	Completed int
	Total     int
}

// Dispatch issues up to limit legs. Each leg is admitted by the guard before
// it starts; once the guard refuses, nothing further is issued. Legs already
// in flight drain on a context detached from ctx.
func (d Dispatcher) Dispatch(ctx context.Context, subQuestions []SubQuestion, limit int, guard *Guard, tier brave.Tier, onLeg func(LegUpdate)) DispatchOutcome {
	selected := selectForDispatch(subQuestions, limit)
	outcome := DispatchOutcome{}
	if len(selected) == 0 {
		return outcome
	}

	parallel := d.cfg.ParallelSearches
	if parallel < 1 {
		parallel = 1
	}
	var g errgroup.Group
	g.SetLimit(parallel)

	var mu sync.Mutex
	results := make([]SearchResult, len(selected))
	issued := make([]bool, len(selected))
	completed := 0
	projected := d.estimator.SearchCost(tier)

	for i, subQuestion := range selected {
		if err := ctx.Err(); err != nil {
			outcome.Tripped = CodeOf(err)
			if outcome.Tripped == CodeUnknown {
				outcome.Tripped = CodeTimeout
			}
			break
		}
		reservation, err := guard.Admit("search", projected)
		if err != nil {
			outcome.Tripped = CodeOf(err)
			break
		}

		g.Go(func() error {
			// The slot may have opened after the deadline passed.
			if err := guard.CheckTime("search"); err != nil {
				reservation.Release()
				return nil
			}

			result := d.runLeg(ctx, subQuestion, tier)
			reservation.Commit(result.CostIncurred)

			mu.Lock()
			defer mu.Unlock()
			results[i] = result
			issued[i] = true
			completed++
			if onLeg != nil {
				onLeg(LegUpdate{Result: result, Completed: completed, Total: len(selected)})
			}
			return nil
		})
	}
	_ = g.Wait()

	for i := range selected {
		if !issued[i] {
			outcome.Skipped++
			continue
		}
		outcome.Issued++
		outcome.Cost += results[i].CostIncurred
		if results[i].Failed {
			outcome.Failed++
		}
		outcome.Results = append(outcome.Results, results[i])
	}
	if outcome.Tripped == CodeNone && outcome.Skipped > 0 {
		outcome.Tripped = guard.Tripped()
	}
	outcome.Cost = roundUSD(outcome.Cost)
	return outcome
}

func (d Dispatcher) runLeg(ctx context.Context, subQuestion SubQuestion, tier brave.Tier) SearchResult {
	result := SearchResult{
		SubQuestionID: subQuestion.ID,
		Query:         subQuestion.Question,
	}
	if d.searcher == nil {
		result.Summary = searchFailedSummary
		result.Failed = true
		result.CostIncurred = d.estimator.FailedSearchCost(tier)
		return result
	}

	legCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.SearchLegTimeout)
	defer cancel()

	hits, err := d.searcher.Search(legCtx, subQuestion.Question, brave.SearchOptions{
		Count: d.cfg.ResultsPerSearch,
		Tier:  tier,
	})
	if err != nil {
		d.logger.Warn("search leg failed",
			zap.String("sub_question_id", subQuestion.ID),
			zap.String("code", string(legErrorCode(err))),
			zap.Error(err),
		)
		result.Summary = searchFailedSummary
		result.Failed = true
		result.CostIncurred = d.estimator.FailedSearchCost(tier)
		return result
	}

	result.Summary, result.Sources = summarizeSearchResults(hits)
	if len(result.Sources) == 0 {
		result.Summary = noResultsSummary
	}
	result.CostIncurred = d.estimator.SearchCost(tier)
	return result
}

func legErrorCode(err error) ErrorCode {
	if errors.Is(err, brave.ErrMissingAPIKey) {
		return CodeSearchFailed
	}
	if code := CodeOf(err); code == CodeRateLimited || code == CodeTimeout {
		return code
	}
	return CodeSearchFailed
}

// selectForDispatch keeps the limit highest-priority sub-questions, ties by
// insertion order, and returns them in their original order.
func selectForDispatch(subQuestions []SubQuestion, limit int) []SubQuestion {
	if limit <= 0 || len(subQuestions) <= limit {
		return append([]SubQuestion(nil), subQuestions...)
	}
	order := make([]int, len(subQuestions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return subQuestions[order[a]].Priority.Weight() > subQuestions[order[b]].Priority.Weight()
	})
	keep := order[:limit]
	sort.Ints(keep)

	selected := make([]SubQuestion, 0, limit)
	for _, idx := range keep {
		selected = append(selected, subQuestions[idx])
	}
	return selected
}
