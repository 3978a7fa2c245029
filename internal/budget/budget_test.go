package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/flexigpt/agentengine-go/spec"
)

func TestTracker_AdmitTurn_Bound(t *testing.T) {
	t.Parallel()

	tr := New(Config{TurnsMax: 2, ToolCallsMaxPerTurn: 4})

	if err := tr.AdmitTurn(); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if err := tr.AdmitTurn(); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	err := tr.AdmitTurn()
	if !errors.Is(err, spec.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}
	// The invariant holds after a failed admission.
	if tr.TurnsUsed() != 2 {
		t.Fatalf("turnsUsed mutated on failed admission: %d", tr.TurnsUsed())
	}
}

func TestTracker_AdmitTurn_Deadline(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := New(Config{
		TurnsMax:            10,
		ToolCallsMaxPerTurn: 4,
		Deadline:            clock.Add(time.Minute),
		Now:                 func() time.Time { return clock },
	})

	if err := tr.AdmitTurn(); err != nil {
		t.Fatalf("turn before deadline: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if err := tr.AdmitTurn(); !errors.Is(err, spec.ErrBudgetExceeded) {
		t.Fatalf("expected deadline failure, got %v", err)
	}
}

func TestTracker_ToolCallCapResetsPerTurn(t *testing.T) {
	t.Parallel()

	tr := New(Config{TurnsMax: 3, ToolCallsMaxPerTurn: 2})

	if err := tr.AdmitTurn(); err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if err := tr.AdmitToolCall(); err != nil {
		t.Fatalf("call 1: %v", err)
	}
	if err := tr.AdmitToolCall(); err != nil {
		t.Fatalf("call 2: %v", err)
	}
	if err := tr.AdmitToolCall(); !errors.Is(err, spec.ErrToolBudgetExceeded) {
		t.Fatalf("expected ErrToolBudgetExceeded, got %v", err)
	}

	if err := tr.AdmitTurn(); err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if err := tr.AdmitToolCall(); err != nil {
		t.Fatalf("counter did not reset on new turn: %v", err)
	}
}

func TestTracker_Snapshot(t *testing.T) {
	t.Parallel()

	tr := New(Config{TurnsMax: 5, ToolCallsMaxPerTurn: 3})
	_ = tr.AdmitTurn()
	_ = tr.AdmitToolCall()

	snap := tr.Snapshot()
	if snap.TurnsUsed != 1 || snap.TurnsMax != 5 || snap.ToolCallsLastTurn != 1 || snap.ToolCallsMaxPerTurn != 3 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
