// Package executor validates, de-duplicates, and runs the tool_call steps
// of one turn with bounded concurrency.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flexigpt/agentengine-go/internal/fingerprint"
	"github.com/flexigpt/agentengine-go/internal/sessionstore"
	"github.com/flexigpt/agentengine-go/spec"
)

const (
	DefaultMaxInFlight  = 4
	DefaultCallTimeout  = 30 * time.Second
	DefaultBatchTimeout = 2 * time.Minute
	DefaultGracePeriod  = 2 * time.Second
)

type Executor struct {
	invoker spec.ToolInvoker
	logger  *slog.Logger
	tracer  trace.Tracer // nil = tracing disabled

	maxInFlight  int
	callTimeout  time.Duration
	batchTimeout time.Duration
	gracePeriod  time.Duration
}

type Config struct {
	Invoker spec.ToolInvoker
	Logger  *slog.Logger
	Tracer  trace.Tracer

	// MaxInFlight caps concurrent tool executions within a batch.
	MaxInFlight int

	// CallTimeout bounds a single tool invocation.
	CallTimeout time.Duration

	// BatchTimeout bounds the whole batch; unfinished steps are
	// finalized as failed with a timeout error and the turn proceeds.
	BatchTimeout time.Duration

	// GracePeriod is how long in-flight executions get to observe
	// cancellation before their slots are finalized.
	GracePeriod time.Duration
}

func New(cfg Config) *Executor {
	e := &Executor{
		invoker:      cfg.Invoker,
		logger:       cfg.Logger,
		tracer:       cfg.Tracer,
		maxInFlight:  cfg.MaxInFlight,
		callTimeout:  cfg.CallTimeout,
		batchTimeout: cfg.BatchTimeout,
		gracePeriod:  cfg.GracePeriod,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.maxInFlight <= 0 {
		e.maxInFlight = DefaultMaxInFlight
	}
	if e.callTimeout <= 0 {
		e.callTimeout = DefaultCallTimeout
	}
	if e.batchTimeout <= 0 {
		e.batchTimeout = DefaultBatchTimeout
	}
	if e.gracePeriod <= 0 {
		e.gracePeriod = DefaultGracePeriod
	}
	return e
}

// ExecuteBatch admits and runs the proposed tool_call steps of one turn.
// Every proposed step is appended to the session trace in proposal order
// and reaches a terminal status before ExecuteBatch returns; a denial or
// duplicate suppression is terminal for that step only and never aborts
// siblings. The returned slice is the batch's steps in sequence order.
func (e *Executor) ExecuteBatch(
	ctx context.Context,
	sess *sessionstore.Session,
	proposed []spec.ProposedStep,
) []spec.PlanStep {
	allowed := map[string]struct{}{}
	for _, t := range sess.Skill.AllowedTools {
		allowed[t] = struct{}{}
	}

	type accepted struct {
		seq  int
		name string
		args map[string]any
	}
	var run []accepted
	seqs := make([]int, 0, len(proposed))

	// Admission happens synchronously in proposal order so sequence
	// numbers and fingerprint registration are deterministic.
	for _, p := range proposed {
		seq := sess.Trace.Record(spec.PlanStep{
			Turn:      sess.TurnIndex,
			Kind:      spec.StepKindToolCall,
			ToolName:  p.ToolName,
			Arguments: p.Arguments,
		})
		seqs = append(seqs, seq)

		if _, ok := allowed[p.ToolName]; !ok {
			_ = sess.Trace.Update(seq, spec.StepStatusDenied, nil,
				fmt.Sprintf("tool %q is not allowed for skill %q", p.ToolName, sess.Skill.Name))
			continue
		}

		key, err := fingerprint.Compute(p.ToolName, p.Arguments)
		if err != nil {
			_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, "fingerprint: "+err.Error())
			continue
		}
		if sess.Fingerprints.Has(key) {
			_ = sess.Trace.Update(seq, spec.StepStatusSkippedDuplicate, nil, "")
			continue
		}

		if err := sess.Budget.AdmitToolCall(); err != nil {
			_ = sess.Trace.Update(seq, spec.StepStatusDenied, nil, "budget: "+err.Error())
			continue
		}

		sess.Fingerprints.Register(key)
		_ = sess.Trace.Update(seq, spec.StepStatusRunning, nil, "")
		run = append(run, accepted{seq: seq, name: p.ToolName, args: p.Arguments})
	}

	if len(run) > 0 {
		batchCtx, cancel := context.WithTimeout(ctx, e.batchTimeout)

		sem := make(chan struct{}, e.maxInFlight)
		done := make(chan struct{})
		go func() {
			defer close(done)
			waitAll := make(chan struct{}, len(run))
			for _, a := range run {
				a := a
				go func() {
					defer func() { waitAll <- struct{}{} }()
					select {
					case sem <- struct{}{}:
					case <-batchCtx.Done():
						return
					}
					defer func() { <-sem }()
					e.executeOne(batchCtx, sess, a.seq, a.name, a.args)
				}()
			}
			for range run {
				<-waitAll
			}
		}()

		select {
		case <-done:
		case <-batchCtx.Done():
			// Batch timeout or external cancellation: give in-flight
			// executions a bounded grace period, then finalize whatever
			// is still open.
			select {
			case <-done:
			case <-time.After(e.gracePeriod):
			}
		}
		cancel()
		e.finalizeOpen(ctx, sess, seqs)
	}

	out := make([]spec.PlanStep, 0, len(seqs))
	for _, seq := range seqs {
		if st, ok := sess.Trace.Get(seq); ok {
			out = append(out, st)
		}
	}
	return out
}

func (e *Executor) executeOne(ctx context.Context, sess *sessionstore.Session, seq int, name string, args map[string]any) {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = e.tracer.Start(ctx, "engine.execute_tool",
			trace.WithAttributes(
				attribute.String("tool", name),
				attribute.Int("sequence", seq),
			))
		defer span.End()
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	result, err := e.invoker.Invoke(callCtx, name, args)
	switch {
	case err != nil:
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.logger.WarnContext(ctx, "tool execution failed",
			slog.String("tool", name),
			slog.Int("sequence", seq),
			slog.String("error", err.Error()),
		)
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, invokeErrorText(ctx, err))
	case result.Error != "":
		// Ordinary domain failure: structured error, not a transport
		// fault. The turn continues.
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, result.Content, result.Error)
	default:
		_ = sess.Trace.Update(seq, spec.StepStatusSucceeded, result.Content, "")
	}
}

// finalizeOpen marks any step of this batch still pending or running as
// failed. The trace refuses terminal overwrites, so a racing completion
// and this finalization cannot corrupt a slot.
func (e *Executor) finalizeOpen(ctx context.Context, sess *sessionstore.Session, seqs []int) {
	errText := "timeout: batch deadline elapsed"
	if ctx.Err() != nil {
		errText = "cancelled"
	}
	for _, seq := range seqs {
		st, ok := sess.Trace.Get(seq)
		if !ok {
			continue
		}
		switch st.Status {
		case spec.StepStatusPending, spec.StepStatusRunning:
			_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, errText)
		}
	}
}

func invokeErrorText(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout: " + err.Error()
	default:
		return err.Error()
	}
}
