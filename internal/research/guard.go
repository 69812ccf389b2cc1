package research

import (
	"fmt"
	"sync"
	"time"
)

// Guard is the session's budget and timeout precondition. Every
// cost-incurring operation must be admitted before it runs.
type Guard struct {
	ledger    *Ledger
	startedAt time.Time
	timeout   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	tripped ErrorCode
}

func NewGuard(ledger *Ledger, startedAt time.Time, timeout time.Duration, now func() time.Time) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{
		ledger:    ledger,
		startedAt: startedAt,
		timeout:   timeout,
		now:       now,
	}
}

// Admit reserves projected cost for op. The caller must Commit or Release the
// returned reservation.
func (g *Guard) Admit(op string, projected float64) (*Reservation, error) {
	if err := g.CheckTime(op); err != nil {
		return nil, err
	}
	reservation, ok := g.ledger.Reserve(projected)
	if !ok {
		g.trip(CodeCostLimitExceeded)
		return nil, newError(CodeCostLimitExceeded, op, fmt.Errorf(
			"projected cost %.6f would exceed budget %.6f (spent %.6f)",
			projected, g.ledger.Limit(), g.ledger.Spent(),
		))
	}
	return reservation, nil
}

func (g *Guard) CheckTime(op string) error {
	if g.timeout <= 0 {
		return nil
	}
	if elapsed := g.Elapsed(); elapsed >= g.timeout {
		g.trip(CodeTimeout)
		return newError(CodeTimeout, op, fmt.Errorf("elapsed %s of %s", elapsed.Round(time.Millisecond), g.timeout))
	}
	return nil
}

func (g *Guard) Elapsed() time.Duration {
	return g.now().Sub(g.startedAt)
}

func (g *Guard) Ledger() *Ledger {
	return g.ledger
}

// Tripped reports the first refusal, if any.
func (g *Guard) Tripped() ErrorCode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tripped
}

func (g *Guard) trip(code ErrorCode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.tripped == CodeNone {
		g.tripped = code
	}
}
