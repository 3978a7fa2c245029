package orchestrator

import (
	"fmt"
	"strings"

	"github.com/flexigpt/agentengine-go/internal/sessionstore"
	"github.com/flexigpt/agentengine-go/spec"
)

// assemble builds the response from the session trace and the run
// outcome. The answer is never empty: callers that reach assembly always
// get at least the deterministic fallback summary.
func assemble(sess *sessionstore.Session, r *run) spec.AskResponse {
	answer := r.answer
	if strings.TrimSpace(answer) == "" {
		answer = fallbackAnswer(sess, r.reason)
	}
	return spec.AskResponse{
		Answer: answer,
		Steps:  sess.Trace.Snapshot(),
		Metadata: spec.Metadata{
			TerminationReason: r.reason,
			Budget:            sess.Budget.Snapshot(),
		},
	}
}

// fallbackAnswer summarizes the trace without a planner call. Used when
// the budget is exhausted, the run was cancelled, or synthesis produced
// no text.
func fallbackAnswer(sess *sessionstore.Session, reason spec.TerminationReason) string {
	steps := sess.Trace.Snapshot()

	var total, succeeded, failed, denied, skipped int
	for _, st := range steps {
		total++
		switch st.Status {
		case spec.StepStatusSucceeded:
			succeeded++
		case spec.StepStatusFailed:
			failed++
		case spec.StepStatusDenied:
			denied++
		case spec.StepStatusSkippedDuplicate:
			skipped++
		}
	}

	var sb strings.Builder
	switch reason {
	case spec.TerminationBudgetExhausted:
		fmt.Fprintf(&sb, "The turn budget for skill %q was exhausted before the task completed.", sess.Skill.Name)
	case spec.TerminationCancelled:
		fmt.Fprintf(&sb, "The request was cancelled while skill %q was running.", sess.Skill.Name)
	default:
		fmt.Fprintf(&sb, "Skill %q finished.", sess.Skill.Name)
	}
	fmt.Fprintf(&sb, " %d step(s) were recorded: %d succeeded, %d failed, %d denied, %d skipped as duplicates.",
		total, succeeded, failed, denied, skipped)

	if results := lastResults(steps, 3); len(results) > 0 {
		sb.WriteString(" Most recent results: ")
		sb.WriteString(strings.Join(results, "; "))
		sb.WriteString(".")
	}
	return sb.String()
}

// lastResults renders up to n most recent succeeded steps, oldest first.
func lastResults(steps []spec.PlanStep, n int) []string {
	var out []string
	for i := len(steps) - 1; i >= 0 && len(out) < n; i-- {
		st := steps[i]
		if st.Status != spec.StepStatusSucceeded {
			continue
		}
		name := st.ToolName
		if name == "" {
			name = string(st.Kind)
		}
		out = append(out, fmt.Sprintf("%s (step %d) succeeded", name, st.SequenceNumber))
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
