package steptrace

import (
	"sync"
	"testing"

	"github.com/flexigpt/agentengine-go/spec"
)

func TestTrace_SequenceAssignment(t *testing.T) {
	t.Parallel()

	tr := New()
	s1 := tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall, ToolName: "a"})
	s2 := tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall, ToolName: "b"})
	if s1 != 1 || s2 != 2 {
		t.Fatalf("unexpected sequence numbers: %d %d", s1, s2)
	}

	got, ok := tr.Get(s1)
	if !ok || got.Status != spec.StepStatusPending || got.ToolName != "a" {
		t.Fatalf("unexpected step: %+v ok=%v", got, ok)
	}
}

func TestTrace_OrderStableUnderConcurrentCompletion(t *testing.T) {
	t.Parallel()

	tr := New()
	const n = 32
	seqs := make([]int, 0, n)
	for i := 0; i < n; i++ {
		seqs = append(seqs, tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall, ToolName: "t"}))
	}

	// Complete in reverse order, concurrently.
	var wg sync.WaitGroup
	for i := n - 1; i >= 0; i-- {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			if err := tr.Update(seq, spec.StepStatusSucceeded, map[string]any{"seq": seq}, ""); err != nil {
				t.Errorf("Update %d: %v", seq, err)
			}
		}(seqs[i])
	}
	wg.Wait()

	snap := tr.Snapshot()
	if len(snap) != n {
		t.Fatalf("expected %d steps, got %d", n, len(snap))
	}
	for i, st := range snap {
		if st.SequenceNumber != i+1 {
			t.Fatalf("order changed at index %d: seq %d", i, st.SequenceNumber)
		}
		if st.Status != spec.StepStatusSucceeded {
			t.Fatalf("step %d not completed: %s", st.SequenceNumber, st.Status)
		}
	}
}

func TestTrace_UpdateUnknownSequence(t *testing.T) {
	t.Parallel()

	tr := New()
	if err := tr.Update(7, spec.StepStatusFailed, nil, "x"); err == nil {
		t.Fatal("expected error for unknown sequence number")
	}
}

func TestTrace_TerminalStatusIsImmutable(t *testing.T) {
	t.Parallel()

	tr := New()
	seq := tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall})
	_ = tr.Update(seq, spec.StepStatusFailed, nil, "cancelled")

	// A late completion must not overwrite the finalized slot.
	if err := tr.Update(seq, spec.StepStatusSucceeded, map[string]any{"late": true}, ""); err != nil {
		t.Fatalf("late update: %v", err)
	}
	got, _ := tr.Get(seq)
	if got.Status != spec.StepStatusFailed || got.Error != "cancelled" {
		t.Fatalf("terminal slot mutated: %+v", got)
	}
}

func TestTrace_SubscribeReceivesTransitions(t *testing.T) {
	t.Parallel()

	tr := New()
	ch, cancel := tr.Subscribe()
	defer cancel()

	seq := tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall, ToolName: "t"})
	_ = tr.Update(seq, spec.StepStatusRunning, nil, "")
	_ = tr.Update(seq, spec.StepStatusSucceeded, map[string]any{"ok": true}, "")

	want := []spec.StreamEventType{
		spec.StreamEventStepCreated,
		spec.StreamEventStepUpdated,
		spec.StreamEventStepUpdated,
	}
	for i, w := range want {
		ev := <-ch
		if ev.Type != w {
			t.Fatalf("event %d: expected %s, got %s", i, w, ev.Type)
		}
		if ev.Step.SequenceNumber != seq {
			t.Fatalf("event %d: wrong step %d", i, ev.Step.SequenceNumber)
		}
	}
}

func TestTrace_SlowSubscriberNeverBlocks(t *testing.T) {
	t.Parallel()

	tr := New()
	ch, cancel := tr.Subscribe()
	defer cancel()

	// Nobody reads from ch; publishing far past the buffer size must not
	// block and must keep the newest events.
	var lastSeq int
	for i := 0; i < subscriberBuffer*3; i++ {
		lastSeq = tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall, ToolName: "t"})
	}

	// Drain what is buffered; the final recorded event must be present.
	var sawLast bool
	for {
		select {
		case ev := <-ch:
			if ev.Step.SequenceNumber == lastSeq {
				sawLast = true
			}
			continue
		default:
		}
		break
	}
	if !sawLast {
		t.Fatal("drop-oldest policy lost the newest event")
	}
}

func TestTrace_Unfinished(t *testing.T) {
	t.Parallel()

	tr := New()
	s1 := tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall})
	s2 := tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall})
	s3 := tr.Record(spec.PlanStep{Kind: spec.StepKindToolCall})
	_ = tr.Update(s1, spec.StepStatusSucceeded, nil, "")
	_ = tr.Update(s2, spec.StepStatusRunning, nil, "")

	open := tr.Unfinished()
	if len(open) != 2 || open[0] != s2 || open[1] != s3 {
		t.Fatalf("unexpected unfinished set: %v", open)
	}
}
