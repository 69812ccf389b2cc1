package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"brandhub/backend/internal/brave"
)

type Orchestrator struct {
	cfg         Config
	classifier  Classifier
	estimator   Estimator
	controller  RoundController
	planner     Planner
	dispatcher  Dispatcher
	synthesizer Synthesizer
	logger      *zap.Logger
	now         func() time.Time
}

// NewOrchestrator copies cfg; later changes to the caller's maps do not reach
// running sessions.
func NewOrchestrator(cfg Config, planner Planner, searcher Searcher, synthesizer Synthesizer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.clone()
	return &Orchestrator{
		cfg:         cfg,
		classifier:  NewClassifier(cfg),
		estimator:   NewEstimator(cfg),
		controller:  NewRoundController(cfg),
		planner:     planner,
		dispatcher:  NewDispatcher(searcher, cfg, logger),
		synthesizer: synthesizer,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock returns a copy that reads time from now.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	next := *o
	if now != nil {
		next.now = now
	}
	return &next
}

func (o *Orchestrator) Config() Config {
	return o.cfg.clone()
}

func (o *Orchestrator) Classifier() Classifier {
	return o.classifier
}

func (o *Orchestrator) Estimator() Estimator {
	return o.estimator
}

type Options struct {
	UseProModel     bool
	ExistingContext string
	OnProgress      func(Progress)
	// OnDelta receives synthesis prose as it streams.
	OnDelta func(string)
}

// Run executes one research session. The error is non-nil only for input the
// pipeline cannot start on; every other outcome is reported through the
// returned session's Status, Code and Message.
func (o *Orchestrator) Run(ctx context.Context, query string, opts Options) (*Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, newError(CodeClassificationFailed, "classify", ErrEmptyQuery)
	}

	startedAt := o.now()
	complexity := o.classifier.Classify(trimmed)
	session := &Session{
		ID:            uuid.NewString(),
		Query:         trimmed,
		Complexity:    complexity,
		UseProModel:   opts.UseProModel,
		Status:        StatusRunning,
		StartedAt:     startedAt,
		EstimatedCost: o.estimator.EstimateSessionCost(complexity, opts.UseProModel),
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	run := &sessionRun{
		o:       o,
		session: session,
		guard:   NewGuard(NewLedger(o.cfg.MaxTotalCost), startedAt, o.cfg.Timeout, o.now),
		opts:    opts,
		tier:    TierFor(opts.UseProModel),
		logger:  o.logger.With(zap.String("session_id", session.ID)),
	}
	run.emit(Progress{
		Phase:      PhaseClassified,
		Complexity: complexity,
		Message:    fmt.Sprintf("Classified as %s", complexity),
	}, ProgressSummaryInput{})
	run.execute(runCtx)
	return session, nil
}

type sessionRun struct {
	o       *Orchestrator
	session *Session
	guard   *Guard
	opts    Options
	tier    brave.Tier
	logger  *zap.Logger
	best    *Synthesis
}

func (r *sessionRun) execute(ctx context.Context) {
	cfg := r.o.cfg
	quota := r.o.estimator.QueriesFor(r.session.Complexity)

	subQuestions, ok := r.plan(ctx, quota)
	if !ok {
		return
	}

	var allResults []SearchResult
	for index := 1; index <= cfg.MaxRounds; index++ {
		limit := cfg.MaxQueriesPerRound
		if index == 1 {
			limit = quota
		}
		dispatched := selectForDispatch(subQuestions, limit)
		round := Round{Index: index, SubQuestions: dispatched}

		r.emit(Progress{
			Phase:        PhaseSearching,
			Round:        index,
			SubQuestions: dispatched,
			Message:      fmt.Sprintf("Round %d: searching %d sub-questions", index, len(dispatched)),
		}, ProgressSummaryInput{})

		outcome := r.o.dispatcher.Dispatch(ctx, dispatched, limit, r.guard, r.tier, func(update LegUpdate) {
			r.emit(Progress{
				Phase:         PhaseSearchComplete,
				Round:         index,
				SubQuestionID: update.Result.SubQuestionID,
				LegFailed:     update.Result.Failed,
				Completed:     update.Completed,
				Total:         update.Total,
			}, ProgressSummaryInput{})
		})
		round.SearchResults = outcome.Results
		if outcome.Failed > 0 {
			r.warn(fmt.Sprintf("Round %d: %d of %d searches failed.", index, outcome.Failed, outcome.Issued))
		}

		if outcome.Tripped != CodeNone {
			round.Discarded = true
			r.session.Rounds = append(r.session.Rounds, round)
			r.logger.Info("round discarded after guard refusal",
				zap.Int("round", index),
				zap.String("code", string(outcome.Tripped)),
				zap.Int("issued", outcome.Issued),
				zap.Int("skipped", outcome.Skipped),
			)
			r.finish(StatusPartial, outcome.Tripped)
			return
		}
		allResults = append(allResults, outcome.Results...)

		synthesis, err := r.synthesize(ctx, index, allResults)
		if err != nil {
			r.session.Rounds = append(r.session.Rounds, markRoundFailed(round))
			code := CodeOf(err)
			switch {
			case code == CodeTimeout || code == CodeCostLimitExceeded:
				r.finish(StatusPartial, code)
			case index == 1:
				r.logger.Warn("synthesis failed", zap.Int("round", index), zap.Error(err))
				r.finish(StatusFailed, CodeSynthesisFailed)
			default:
				r.logger.Warn("synthesis failed; keeping previous round", zap.Int("round", index), zap.Error(err))
				r.finish(StatusPartial, CodeSynthesisFailed)
			}
			return
		}

		round.Synthesis = &synthesis
		r.best = &synthesis
		r.session.RoundsCompleted = index
		r.session.Rounds = append(r.session.Rounds, round)

		decision := r.o.controller.Decide(RoundState{
			RoundsCompleted: index,
			AccumulatedCost: r.guard.Ledger().Spent(),
			Elapsed:         r.guard.Elapsed(),
		}, synthesis)
		progressDecision := ProgressDecisionFinalize
		if decision.Continue {
			progressDecision = ProgressDecisionContinue
		}
		r.emit(Progress{
			Phase:      PhaseEvaluated,
			Round:      index,
			Confidence: synthesis.Confidence,
			GapCount:   len(synthesis.Gaps),
			Message:    fmt.Sprintf("Confidence %.2f with %d gaps", synthesis.Confidence, len(synthesis.Gaps)),
		}, ProgressSummaryInput{Decision: progressDecision})

		if !decision.Continue {
			r.finish(decision.Status, decision.Code)
			return
		}

		subQuestions = GapsToSubQuestions(index+1, SelectGaps(synthesis.Gaps, cfg.MaxGapsToAddress))
		if len(subQuestions) == 0 {
			r.finish(StatusCompleted, CodeNone)
			return
		}
		r.emit(Progress{
			Phase:        PhaseIterating,
			Round:        index + 1,
			SubQuestions: subQuestions,
			Message:      fmt.Sprintf("Following up on %d gaps", len(subQuestions)),
		}, ProgressSummaryInput{})
	}

	r.finish(StatusCompleted, CodeNone)
}

// plan returns round-1 sub-questions. Planning is skipped when the tier allows
// a single search, and degrades to the raw query when the planner fails.
func (r *sessionRun) plan(ctx context.Context, quota int) ([]SubQuestion, bool) {
	query := r.session.Query
	if quota <= 1 || r.o.planner == nil {
		subQuestions := singleSubQuestion(query, "answered with a single search")
		r.emit(Progress{Phase: PhasePlanned, SubQuestions: subQuestions}, ProgressSummaryInput{})
		return subQuestions, true
	}

	r.emit(Progress{Phase: PhasePlanning, Message: "Planning sub-questions"}, ProgressSummaryInput{})
	reservation, err := r.guard.Admit("plan", r.o.estimator.PlanningCost())
	if err != nil {
		r.finish(StatusPartial, CodeOf(err))
		return nil, false
	}
	plan, err := r.o.planner.Plan(ctx, query, r.session.Complexity, r.opts.ExistingContext)
	reservation.Commit(plan.Cost)
	if err != nil {
		r.logger.Warn("planning failed; searching the raw query", zap.Error(err))
		r.warn(Message(CodePlanningFailed))
		subQuestions := singleSubQuestion(query, "planning failed")
		r.emit(Progress{Phase: PhasePlanned, SubQuestions: subQuestions}, ProgressSummaryInput{UsedFallback: true})
		return subQuestions, true
	}

	r.emit(Progress{Phase: PhasePlanned, SubQuestions: plan.SubQuestions}, ProgressSummaryInput{})
	return plan.SubQuestions, true
}

func (r *sessionRun) synthesize(ctx context.Context, round int, results []SearchResult) (Synthesis, error) {
	if r.o.synthesizer == nil {
		return Synthesis{}, newError(CodeSynthesisFailed, "synthesize", errors.New("synthesizer unavailable"))
	}
	reservation, err := r.guard.Admit("synthesize", r.o.estimator.SynthesisCost())
	if err != nil {
		return Synthesis{}, err
	}
	r.emit(Progress{
		Phase:   PhaseSynthesizing,
		Round:   round,
		Message: fmt.Sprintf("Synthesizing %d results", len(results)),
	}, ProgressSummaryInput{})

	synthesis, err := r.o.synthesizer.Synthesize(ctx, r.session.Query, results, r.opts.OnDelta)
	reservation.Commit(synthesis.Cost)
	if err != nil && ctx.Err() != nil && CodeOf(err) != CodeTimeout {
		// the session deadline ended the call, whatever the synthesizer reported
		err = newError(CodeTimeout, "synthesize", errors.Join(ctx.Err(), err))
	}
	return synthesis, err
}

func (r *sessionRun) finish(status Status, code ErrorCode) {
	session := r.session
	if status == StatusCompleted {
		code = CodeNone
	}
	session.Status = status
	session.Code = code
	session.Message = Message(code)
	session.AccumulatedCost = r.guard.Ledger().Spent()
	session.FinishedAt = r.o.now()

	answer := Answer{
		RoundsCompleted: session.RoundsCompleted,
		CostIncurred:    session.AccumulatedCost,
	}
	switch {
	case r.best != nil:
		answer.AnswerText = r.best.AnswerText
		answer.Sources = r.best.Sources
		answer.Confidence = r.best.Confidence
	case status == StatusPartial:
		answer.AnswerText = insufficientBudgetAnswer
	}
	session.Answer = answer

	r.emit(Progress{Phase: PhaseFinalizing, Message: session.Message}, ProgressSummaryInput{})
	r.logger.Info("research session finished",
		zap.String("status", string(status)),
		zap.String("code", string(code)),
		zap.String("complexity", string(session.Complexity)),
		zap.Int("rounds", session.RoundsCompleted),
		zap.Float64("cost_usd", session.AccumulatedCost),
		zap.Duration("elapsed", session.Duration()),
	)
}

func (r *sessionRun) warn(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	for _, existing := range r.session.Warnings {
		if strings.EqualFold(existing, trimmed) {
			return
		}
	}
	r.session.Warnings = append(r.session.Warnings, trimmed)
}

func (r *sessionRun) emit(progress Progress, summary ProgressSummaryInput) {
	if r.opts.OnProgress == nil {
		return
	}
	progress.MaxRounds = r.o.cfg.MaxRounds
	progress.Cost = r.guard.Ledger().Spent()
	if progress.Complexity == "" {
		progress.Complexity = r.session.Complexity
	}
	r.opts.OnProgress(WithProgressSummary(progress, summary))
}

func markRoundFailed(round Round) Round {
	round.Failed = true
	return round
}
