// Package steptrace maintains the ordered, append-only execution trace of
// a session and fans step transitions out to subscribers.
package steptrace

import (
	"fmt"
	"sync"

	"github.com/flexigpt/agentengine-go/spec"
)

// subscriberBuffer bounds each subscriber channel. Delivery is
// best-effort: on overflow the oldest buffered event is dropped so a slow
// or absent subscriber never blocks orchestration.
const subscriberBuffer = 64

// Event is emitted once per step transition: creation and every status
// change.
type Event struct {
	Type  spec.StreamEventType
	Step  spec.PlanStep
	Chunk string
}

// Trace owns the step slots for one session. Slots are assigned at
// proposal time; concurrent completions only ever fill in status and
// result, so recorded order is independent of completion timing.
type Trace struct {
	mu      sync.Mutex
	steps   []spec.PlanStep
	nextSeq int

	subs map[int]chan Event
	nsub int
}

func New() *Trace {
	return &Trace{subs: map[int]chan Event{}}
}

// Record appends a step, assigns its sequence number, and returns it.
// Sequence numbers are strictly increasing across the whole session.
func (t *Trace) Record(step spec.PlanStep) int {
	t.mu.Lock()
	t.nextSeq++
	step.SequenceNumber = t.nextSeq
	if step.Status == "" {
		step.Status = spec.StepStatusPending
	}
	t.steps = append(t.steps, step)
	t.publishLocked(Event{Type: spec.StreamEventStepCreated, Step: cloneStep(step)})
	t.mu.Unlock()
	return step.SequenceNumber
}

// Update mutates only the status, result, and error of the slot reserved
// at proposal time. Terminal statuses are immutable: updating an already
// terminal slot is a silent no-op, so a late tool completion can never
// overwrite a cancellation or timeout finalization.
func (t *Trace) Update(sequenceNumber int, status spec.StepStatus, result map[string]any, errText string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := sequenceNumber - 1
	if i < 0 || i >= len(t.steps) {
		return fmt.Errorf("%w: unknown sequence number %d", spec.ErrInvalidArgument, sequenceNumber)
	}
	switch t.steps[i].Status {
	case spec.StepStatusPending, spec.StepStatusRunning:
	default:
		return nil
	}
	t.steps[i].Status = status
	t.steps[i].Result = result
	t.steps[i].Error = errText
	t.publishLocked(Event{Type: spec.StreamEventStepUpdated, Step: cloneStep(t.steps[i])})
	return nil
}

// Get returns the step at the given sequence number.
func (t *Trace) Get(sequenceNumber int) (spec.PlanStep, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := sequenceNumber - 1
	if i < 0 || i >= len(t.steps) {
		return spec.PlanStep{}, false
	}
	return cloneStep(t.steps[i]), true
}

// Snapshot returns the trace in sequence order.
func (t *Trace) Snapshot() []spec.PlanStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]spec.PlanStep, len(t.steps))
	for i := range t.steps {
		out[i] = cloneStep(t.steps[i])
	}
	return out
}

// Unfinished returns sequence numbers of steps that are neither terminal
// nor pending-denied, i.e. still pending or running.
func (t *Trace) Unfinished() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for i := range t.steps {
		switch t.steps[i].Status {
		case spec.StepStatusPending, spec.StepStatusRunning:
			out = append(out, t.steps[i].SequenceNumber)
		}
	}
	return out
}

// Subscribe registers a best-effort event channel. The returned cancel
// function closes the channel; it is safe to call more than once.
func (t *Trace) Subscribe() (<-chan Event, func()) {
	t.mu.Lock()
	id := t.nsub
	t.nsub++
	ch := make(chan Event, subscriberBuffer)
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			t.mu.Lock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
			t.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish forwards an out-of-band event (answer chunks during synthesis)
// to subscribers.
func (t *Trace) Publish(ev Event) {
	t.mu.Lock()
	t.publishLocked(ev)
	t.mu.Unlock()
}

func (t *Trace) publishLocked(ev Event) {
	for _, ch := range t.subs {
		for {
			select {
			case ch <- ev:
			default:
				// Full buffer: drop the oldest event and retry once; if
				// another writer raced us, just try again.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func cloneStep(in spec.PlanStep) spec.PlanStep {
	out := in
	if in.Arguments != nil {
		out.Arguments = make(map[string]any, len(in.Arguments))
		for k, v := range in.Arguments {
			out.Arguments[k] = v
		}
	}
	if in.Result != nil {
		out.Result = make(map[string]any, len(in.Result))
		for k, v := range in.Result {
			out.Result[k] = v
		}
	}
	return out
}
