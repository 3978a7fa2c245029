package agentengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/flexigpt/agentengine-go/internal/steptrace"
	"github.com/flexigpt/agentengine-go/spec"
)

// AskStream is Ask with live progress. The returned channel carries one
// event per step transition, answer chunks when the planner streams
// synthesis, and exactly one terminal final event (response or error),
// then closes. Event delivery is best-effort; the final event is not.
func (e *Engine) AskStream(ctx context.Context, req spec.AskRequest) (<-chan spec.StreamEvent, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("%w: request text is required", spec.ErrInvalidArgument)
	}

	sess, err := e.orch.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	events, cancel := sess.Trace.Subscribe()

	out := make(chan spec.StreamEvent, 16)
	go func() {
		defer close(out)
		defer e.sessions.Delete(sess.ID)

		type result struct {
			resp spec.AskResponse
			err  error
		}
		done := make(chan result, 1)
		go func() {
			resp, rerr := e.orch.Resume(ctx, sess, req)
			// Closing the subscription ends the forwarding range below.
			cancel()
			done <- result{resp: resp, err: rerr}
		}()

		// Forward until the run closes the subscription. Once the
		// consumer's ctx is gone, keep draining so the subscription
		// buffer stays serviced, but stop sending.
		forward := true
		for ev := range events {
			if !forward {
				continue
			}
			select {
			case out <- toStreamEvent(ev):
			case <-ctx.Done():
				forward = false
			}
		}

		res := <-done
		final := spec.StreamEvent{Type: spec.StreamEventFinal}
		if res.err != nil {
			final.Error = res.err.Error()
		} else {
			final.Final = &res.resp
		}
		select {
		case out <- final:
		case <-ctx.Done():
			if forward {
				// Consumer raced ctx cancellation; try once more
				// non-blocking so a live reader still gets the final.
				select {
				case out <- final:
				default:
				}
			}
		}
	}()
	return out, nil
}

func toStreamEvent(ev steptrace.Event) spec.StreamEvent {
	out := spec.StreamEvent{Type: ev.Type, Chunk: ev.Chunk}
	switch ev.Type {
	case spec.StreamEventStepCreated, spec.StreamEventStepUpdated:
		step := ev.Step
		out.Step = &step
	}
	return out
}
