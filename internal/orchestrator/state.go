package orchestrator

import (
	"fmt"

	"github.com/flexigpt/agentengine-go/spec"
)

// State is the orchestrator's position in the planning loop.
type State string

const (
	StateRouting         State = "routing"
	StatePlanning        State = "planning"
	StateExecuting       State = "executing"
	StateSynthesizing    State = "synthesizing"
	StateDone            State = "done"
	StateFailed          State = "failed"
	StateBudgetExhausted State = "budget_exhausted"
	StateCancelled       State = "cancelled"
)

// allowedTransitions is the full transition relation. Terminal states
// have no successors and are never re-entered.
var allowedTransitions = map[State]map[State]struct{}{
	"": {
		StateRouting: {},
	},
	StateRouting: {
		StatePlanning: {},
		StateFailed:   {},
	},
	StatePlanning: {
		StateExecuting:       {},
		StateSynthesizing:    {},
		StateBudgetExhausted: {},
		StateFailed:          {},
		StateCancelled:       {},
	},
	StateExecuting: {
		StatePlanning:  {},
		StateCancelled: {},
	},
	StateSynthesizing: {
		StateDone:      {},
		StateFailed:    {},
		StateCancelled: {},
	},
	StateDone:            {},
	StateFailed:          {},
	StateBudgetExhausted: {},
	StateCancelled:       {},
}

type run struct {
	state  State
	answer string
	reason spec.TerminationReason
}

func (r *run) transition(to State) error {
	allowed, ok := allowedTransitions[r.state]
	if !ok {
		return fmt.Errorf("%w: unknown state %q", spec.ErrInvalidArgument, r.state)
	}
	if _, ok := allowed[to]; !ok {
		return fmt.Errorf("%w: invalid transition %s -> %s", spec.ErrInvalidArgument, r.state, to)
	}
	r.state = to
	return nil
}
