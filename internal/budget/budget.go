// Package budget enforces per-session turn and tool-call limits. A
// Tracker is exclusively owned by one session's control flow, so no
// locking happens here. All checks are preconditions: once admission
// fails, no side-effecting work starts.
package budget

import (
	"fmt"
	"time"

	"github.com/flexigpt/agentengine-go/spec"
)

type Tracker struct {
	turnsUsed           int
	turnsMax            int
	toolCallsThisTurn   int
	toolCallsMaxPerTurn int
	deadline            time.Time

	now func() time.Time
}

type Config struct {
	TurnsMax            int
	ToolCallsMaxPerTurn int
	Deadline            time.Time

	// Now overrides the clock in tests.
	Now func() time.Time
}

func New(cfg Config) *Tracker {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		turnsMax:            cfg.TurnsMax,
		toolCallsMaxPerTurn: cfg.ToolCallsMaxPerTurn,
		deadline:            cfg.Deadline,
		now:                 now,
	}
}

// AdmitTurn starts a new turn. It fails with ErrBudgetExceeded when the
// incremented count would exceed turnsMax or the session deadline has
// passed; counters are left untouched on failure, so turnsUsed <= turnsMax
// holds at every observation point.
func (t *Tracker) AdmitTurn() error {
	if !t.deadline.IsZero() && t.now().After(t.deadline) {
		return fmt.Errorf("%w: session deadline passed", spec.ErrBudgetExceeded)
	}
	if t.turnsUsed+1 > t.turnsMax {
		return fmt.Errorf("%w: %d turns used of %d", spec.ErrBudgetExceeded, t.turnsUsed, t.turnsMax)
	}
	t.turnsUsed++
	t.toolCallsThisTurn = 0
	return nil
}

// AdmitToolCall admits one tool call within the current turn.
func (t *Tracker) AdmitToolCall() error {
	if t.toolCallsThisTurn+1 > t.toolCallsMaxPerTurn {
		return fmt.Errorf(
			"%w: %d calls used of %d this turn",
			spec.ErrToolBudgetExceeded, t.toolCallsThisTurn, t.toolCallsMaxPerTurn,
		)
	}
	t.toolCallsThisTurn++
	return nil
}

func (t *Tracker) TurnsUsed() int { return t.turnsUsed }

func (t *Tracker) Deadline() time.Time { return t.deadline }

func (t *Tracker) Snapshot() spec.BudgetSnapshot {
	return spec.BudgetSnapshot{
		TurnsUsed:           t.turnsUsed,
		TurnsMax:            t.turnsMax,
		ToolCallsLastTurn:   t.toolCallsThisTurn,
		ToolCallsMaxPerTurn: t.toolCallsMaxPerTurn,
		Deadline:            t.deadline,
	}
}
