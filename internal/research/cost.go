package research

import (
	"math"
	"sync"

	"brandhub/backend/internal/brave"
)

const costEpsilon = 1e-9

// Estimator prices research operations from Config.Pricing. All methods are
// pure.
type Estimator struct {
	cfg Config
}

func NewEstimator(cfg Config) Estimator {
	return Estimator{cfg: cfg}
}

func TierFor(useProModel bool) brave.Tier {
	if useProModel {
		return brave.TierPro
	}
	return brave.TierStandard
}

// QueriesFor is the round-1 search quota for a complexity tier, capped by the
// per-round limit.
func (e Estimator) QueriesFor(complexity Complexity) int {
	queries, ok := e.cfg.QueriesPerComplexity[complexity]
	if !ok || queries < 1 {
		queries = 1
	}
	if e.cfg.MaxQueriesPerRound > 0 && queries > e.cfg.MaxQueriesPerRound {
		queries = e.cfg.MaxQueriesPerRound
	}
	return queries
}

func (e Estimator) SearchCost(tier brave.Tier) float64 {
	return e.cfg.SearchPrice(tier)
}

func (e Estimator) FailedSearchCost(tier brave.Tier) float64 {
	if e.cfg.FailedSearchCost == FailedSearchCostFull {
		return e.SearchCost(tier)
	}
	return 0
}

func (e Estimator) LLMCost(inputTokens, outputTokens int) float64 {
	if inputTokens < 0 {
		inputTokens = 0
	}
	if outputTokens < 0 {
		outputTokens = 0
	}
	return float64(inputTokens)/1000*e.cfg.Pricing.LLMInputPer1KUSD +
		float64(outputTokens)/1000*e.cfg.Pricing.LLMOutputPer1KUSD
}

func (e Estimator) PlanningCost() float64 {
	return roundUSD(e.LLMCost(e.cfg.Pricing.PlanningInputTokens, e.cfg.Pricing.PlanningOutputTokens))
}

func (e Estimator) SynthesisCost() float64 {
	return roundUSD(e.LLMCost(e.cfg.Pricing.SynthesisInputTokens, e.cfg.Pricing.SynthesisOutputTokens))
}

// ResponseCost settles an LLM call: the provider-reported cost wins, then
// token usage, then the projected estimate.
func (e Estimator) ResponseCost(usage *Usage, projected float64) float64 {
	if usage == nil {
		return projected
	}
	if usage.HasCost && usage.CostUSD >= 0 {
		return usage.CostUSD
	}
	if usage.InputTokens > 0 || usage.OutputTokens > 0 {
		return e.LLMCost(usage.InputTokens, usage.OutputTokens)
	}
	return projected
}

// EstimateSessionCost predicts search plus synthesis spend. Complex queries
// are scaled by Round2Multiplier since only they are expected to run a second
// round.
func (e Estimator) EstimateSessionCost(complexity Complexity, useProModel bool) float64 {
	queries := e.cfg.QueriesPerComplexity[complexity]
	if queries < 1 {
		queries = 1
	}
	cost := float64(queries)*e.SearchCost(TierFor(useProModel)) + e.SynthesisCost()
	if complexity == ComplexityComplex {
		cost *= e.cfg.Round2Multiplier
	}
	return roundUSD(cost)
}

func roundUSD(value float64) float64 {
	return math.Round(value*1e6) / 1e6
}

// Ledger is a session-local running cost with reservations. Spent never
// decreases.
type Ledger struct {
	mu       sync.Mutex
	limit    float64
	spent    float64
	reserved float64
}

func NewLedger(limit float64) *Ledger {
	return &Ledger{limit: limit}
}

type Reservation struct {
	ledger  *Ledger
	amount  float64
	settled bool
}

// Reserve holds amount against the limit. It fails when spent, outstanding
// reservations and amount together would exceed the limit.
func (l *Ledger) Reserve(amount float64) (*Reservation, bool) {
	if amount < 0 {
		amount = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.spent+l.reserved+amount > l.limit+costEpsilon {
		return nil, false
	}
	l.reserved += amount
	return &Reservation{ledger: l, amount: amount}, true
}

// Commit releases the reservation and records the actual cost.
func (r *Reservation) Commit(actual float64) {
	if r == nil {
		return
	}
	r.ledger.settle(r, actual)
}

// Release drops the reservation without recording cost.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.ledger.settle(r, 0)
}

func (l *Ledger) settle(r *Reservation, actual float64) {
	if actual < 0 {
		actual = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if r.settled {
		return
	}
	r.settled = true
	l.reserved -= r.amount
	if l.reserved < costEpsilon {
		l.reserved = 0
	}
	l.spent += actual
}

func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return roundUSD(l.spent)
}

func (l *Ledger) Limit() float64 {
	return l.limit
}

func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.limit - l.spent - l.reserved
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (l *Ledger) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent+costEpsilon >= l.limit
}
