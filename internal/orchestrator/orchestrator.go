// Package orchestrator drives the planning loop: it routes a request to a
// skill, alternates planner invocations and tool execution under budget
// enforcement, and assembles the final response. Planner output is pure
// data consumed by the transition function, so the loop itself stays
// deterministic and testable with canned planner responses.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flexigpt/agentengine-go/internal/budget"
	"github.com/flexigpt/agentengine-go/internal/executor"
	"github.com/flexigpt/agentengine-go/internal/prompt"
	"github.com/flexigpt/agentengine-go/internal/router"
	"github.com/flexigpt/agentengine-go/internal/sessionstore"
	"github.com/flexigpt/agentengine-go/internal/steptrace"
	"github.com/flexigpt/agentengine-go/spec"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryBase     = 200 * time.Millisecond
)

// RetryConfig bounds planner retries: attempts with a doubling delay.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

type Orchestrator struct {
	router   *router.Router
	sessions *sessionstore.Store
	executor *executor.Executor
	planner  spec.Planner
	history  spec.HistoryStore
	memory   spec.MemoryStore
	logger   *slog.Logger
	tracer   trace.Tracer // nil = tracing disabled

	toolDefs            []spec.ToolDefinition
	maxToolCallsPerTurn int
	sessionTimeout      time.Duration
	retry               RetryConfig
}

type Config struct {
	Router   *router.Router
	Sessions *sessionstore.Store
	Executor *executor.Executor
	Planner  spec.Planner
	History  spec.HistoryStore
	Memory   spec.MemoryStore
	Logger   *slog.Logger
	Tracer   trace.Tracer

	// ToolDefs is the engine-wide tool catalog; the planner only ever
	// sees the subset named by the routed skill's allowed tools.
	ToolDefs []spec.ToolDefinition

	MaxToolCallsPerTurn int

	// SessionTimeout sets the budget deadline relative to session
	// creation. Zero disables the deadline.
	SessionTimeout time.Duration

	Retry RetryConfig
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Router == nil || cfg.Sessions == nil || cfg.Executor == nil {
		return nil, errors.New("router, sessions, and executor are required")
	}
	if cfg.Planner == nil {
		return nil, errors.New("planner is required")
	}
	o := &Orchestrator{
		router:              cfg.Router,
		sessions:            cfg.Sessions,
		executor:            cfg.Executor,
		planner:             cfg.Planner,
		history:             cfg.History,
		memory:              cfg.Memory,
		logger:              cfg.Logger,
		tracer:              cfg.Tracer,
		toolDefs:            cfg.ToolDefs,
		maxToolCallsPerTurn: cfg.MaxToolCallsPerTurn,
		sessionTimeout:      cfg.SessionTimeout,
		retry:               cfg.Retry,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.maxToolCallsPerTurn <= 0 {
		o.maxToolCallsPerTurn = 16
	}
	if o.retry.MaxAttempts <= 0 {
		o.retry.MaxAttempts = DefaultRetryAttempts
	}
	if o.retry.BaseDelay <= 0 {
		o.retry.BaseDelay = DefaultRetryBase
	}
	return o, nil
}

// Run drives one request end to end. Only routing failure, planner retry
// exhaustion, and pre-session cancellation surface as errors; every other
// outcome (including budget exhaustion and mid-run cancellation) returns
// a well-formed response with a non-empty answer.
func (o *Orchestrator) Run(ctx context.Context, req spec.AskRequest) (spec.AskResponse, error) {
	sess, err := o.Prepare(ctx, req)
	if err != nil {
		return spec.AskResponse{}, err
	}
	defer o.sessions.Delete(sess.ID)
	return o.Resume(ctx, sess, req)
}

// Prepare routes the request and creates the session without starting the
// loop. The engine uses the gap to attach stream subscribers to the
// session trace; sequential Prepare then Resume is equivalent to Run.
// Routing failure is fatal and creates no session.
func (o *Orchestrator) Prepare(ctx context.Context, req spec.AskRequest) (*sessionstore.Session, error) {
	skill, err := o.router.Route(req.SkillName, req.Text)
	if err != nil {
		o.recordSpanError(ctx, err)
		return nil, err
	}

	b := budget.New(budget.Config{
		TurnsMax:            skill.MaxTurns,
		ToolCallsMaxPerTurn: o.maxToolCallsPerTurn,
		Deadline:            deadlineFrom(o.sessionTimeout),
	})
	sess := o.sessions.NewSession(req.SessionID, skill, b)

	o.logger.DebugContext(ctx, "request routed",
		slog.String("skill", skill.Name),
		slog.String("session_id", string(sess.ID)),
	)
	return sess, nil
}

// Resume runs the planning loop on a prepared session. The caller owns
// session deletion.
func (o *Orchestrator) Resume(ctx context.Context, sess *sessionstore.Session, req spec.AskRequest) (spec.AskResponse, error) {
	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.Start(ctx, "engine.ask",
			trace.WithAttributes(
				attribute.String("skill", sess.Skill.Name),
				attribute.String("session_id", string(sess.ID)),
			))
		defer span.End()
	}

	r := &run{}
	if err := r.transition(StateRouting); err != nil {
		return spec.AskResponse{}, err
	}
	return o.loop(ctx, r, sess, req)
}

func (o *Orchestrator) loop(ctx context.Context, r *run, sess *sessionstore.Session, req spec.AskRequest) (spec.AskResponse, error) {
	skill := sess.Skill

	if prior, err := o.loadHistory(ctx, sess.ID); err != nil {
		o.logger.WarnContext(ctx, "history load failed, continuing without prior context",
			slog.String("session_id", string(sess.ID)),
			slog.String("error", err.Error()),
		)
	} else {
		sess.History = prior
	}
	o.appendHistory(ctx, sess, spec.Message{Role: spec.RoleUser, Content: req.Text})

	sysCtx, err := prompt.SystemContext(skill, req.Inputs, o.allowedToolDefs(skill))
	if err != nil {
		_ = r.transition(StatePlanning)
		_ = r.transition(StateFailed)
		return spec.AskResponse{}, fmt.Errorf("build system context: %w", err)
	}

	if err := r.transition(StatePlanning); err != nil {
		return spec.AskResponse{}, err
	}

	var lastPlan spec.PlanResponse
	for {
		if ctx.Err() != nil {
			return o.finishCancelled(ctx, r, sess)
		}

		if err := sess.Budget.AdmitTurn(); err != nil {
			if errors.Is(err, spec.ErrBudgetExceeded) {
				_ = r.transition(StateBudgetExhausted)
				r.reason = spec.TerminationBudgetExhausted
				r.answer = fallbackAnswer(sess, spec.TerminationBudgetExhausted)
				o.appendHistory(ctx, sess, spec.Message{Role: spec.RoleAssistant, Content: r.answer})
				return assemble(sess, r), nil
			}
			_ = r.transition(StateFailed)
			return spec.AskResponse{}, err
		}
		sess.TurnIndex++

		planSeq := sess.Trace.Record(spec.PlanStep{
			Turn:   sess.TurnIndex,
			Kind:   spec.StepKindLLMCall,
			Status: spec.StepStatusRunning,
		})
		planResp, err := o.planWithRetry(ctx, spec.PlanRequest{
			SystemContext: sysCtx,
			History:       append([]spec.Message(nil), sess.History...),
			Trace:         sess.Trace.Snapshot(),
			Tools:         o.allowedToolDefs(skill),
		})
		if err != nil {
			_ = sess.Trace.Update(planSeq, spec.StepStatusFailed, nil, err.Error())
			if ctx.Err() != nil {
				return o.finishCancelled(ctx, r, sess)
			}
			_ = r.transition(StateFailed)
			o.recordSpanError(ctx, err)
			return spec.AskResponse{}, errors.Join(spec.ErrPlannerFailure, err)
		}
		_ = sess.Trace.Update(planSeq, spec.StepStatusSucceeded, map[string]any{
			"proposed_steps": len(planResp.Steps),
			"done":           planResp.Done,
		}, "")
		lastPlan = planResp

		if planResp.Done || len(planResp.Steps) == 0 {
			break
		}

		if err := r.transition(StateExecuting); err != nil {
			return spec.AskResponse{}, err
		}
		o.executeProposed(ctx, sess, planResp.Steps, sysCtx)
		if ctx.Err() != nil {
			return o.finishCancelled(ctx, r, sess)
		}
		if err := r.transition(StatePlanning); err != nil {
			return spec.AskResponse{}, err
		}
	}

	if err := r.transition(StateSynthesizing); err != nil {
		return spec.AskResponse{}, err
	}
	answer, err := o.synthesize(ctx, sess, lastPlan, sysCtx)
	if err != nil {
		if ctx.Err() != nil {
			return o.finishCancelled(ctx, r, sess)
		}
		_ = r.transition(StateFailed)
		o.recordSpanError(ctx, err)
		return spec.AskResponse{}, errors.Join(spec.ErrPlannerFailure, err)
	}

	_ = r.transition(StateDone)
	r.reason = spec.TerminationCompleted
	r.answer = answer
	o.appendHistory(ctx, sess, spec.Message{Role: spec.RoleAssistant, Content: answer})
	return assemble(sess, r), nil
}

// executeProposed walks the proposals in order, batching contiguous
// tool_call steps for concurrent execution and running memory_lookup and
// llm_call steps inline, so sequence numbers always follow proposal
// order.
func (o *Orchestrator) executeProposed(ctx context.Context, sess *sessionstore.Session, proposed []spec.ProposedStep, sysCtx string) {
	var batch []spec.ProposedStep
	flush := func() {
		if len(batch) == 0 {
			return
		}
		steps := o.executor.ExecuteBatch(ctx, sess, batch)
		batch = nil
		for _, st := range steps {
			o.foldStep(ctx, sess, st)
		}
	}

	for _, p := range proposed {
		switch p.Kind {
		case spec.StepKindToolCall:
			batch = append(batch, p)
		case spec.StepKindMemoryLookup:
			flush()
			o.runMemoryLookup(ctx, sess, p)
		case spec.StepKindLLMCall:
			flush()
			o.runNestedCompletion(ctx, sess, p, sysCtx)
		default:
			flush()
			seq := sess.Trace.Record(spec.PlanStep{
				Turn: sess.TurnIndex, Kind: p.Kind, ToolName: p.ToolName, Arguments: p.Arguments,
			})
			_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil,
				fmt.Sprintf("unknown step kind %q", p.Kind))
		}
	}
	flush()
}

func (o *Orchestrator) runMemoryLookup(ctx context.Context, sess *sessionstore.Session, p spec.ProposedStep) {
	seq := sess.Trace.Record(spec.PlanStep{
		Turn: sess.TurnIndex, Kind: spec.StepKindMemoryLookup, Arguments: p.Arguments,
	})
	if o.memory == nil {
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, "memory store not configured")
		return
	}
	query, _ := p.Arguments["query"].(string)
	if strings.TrimSpace(query) == "" {
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, "memory_lookup requires a query argument")
		return
	}
	_ = sess.Trace.Update(seq, spec.StepStatusRunning, nil, "")
	snippets, err := o.memory.Recall(ctx, query)
	if err != nil {
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, err.Error())
		return
	}
	contents := make([]any, 0, len(snippets))
	for _, s := range snippets {
		contents = append(contents, s.Content)
	}
	_ = sess.Trace.Update(seq, spec.StepStatusSucceeded, map[string]any{"snippets": contents}, "")
	if st, ok := sess.Trace.Get(seq); ok {
		o.foldStep(ctx, sess, st)
	}
}

func (o *Orchestrator) runNestedCompletion(ctx context.Context, sess *sessionstore.Session, p spec.ProposedStep, sysCtx string) {
	seq := sess.Trace.Record(spec.PlanStep{
		Turn: sess.TurnIndex, Kind: spec.StepKindLLMCall, Arguments: p.Arguments,
	})
	promptText, _ := p.Arguments["prompt"].(string)
	if strings.TrimSpace(promptText) == "" {
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, "llm_call requires a prompt argument")
		return
	}
	_ = sess.Trace.Update(seq, spec.StepStatusRunning, nil, "")
	resp, err := o.planWithRetry(ctx, spec.PlanRequest{
		SystemContext: sysCtx,
		History: append(append([]spec.Message(nil), sess.History...),
			spec.Message{Role: spec.RoleUser, Content: promptText}),
	})
	if err != nil {
		// Per-step failure: the turn continues.
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, err.Error())
		return
	}
	_ = sess.Trace.Update(seq, spec.StepStatusSucceeded, map[string]any{"answer": resp.Answer}, "")
	if st, ok := sess.Trace.Get(seq); ok {
		o.foldStep(ctx, sess, st)
	}
}

// foldStep folds a terminal step's outcome into the session history so
// the next planner turn sees it.
func (o *Orchestrator) foldStep(ctx context.Context, sess *sessionstore.Session, st spec.PlanStep) {
	switch st.Status {
	case spec.StepStatusSucceeded, spec.StepStatusFailed:
	default:
		return
	}
	payload := map[string]any{
		"sequence_number": st.SequenceNumber,
		"kind":            st.Kind,
		"status":          st.Status,
	}
	if st.Result != nil {
		payload["result"] = st.Result
	}
	if st.Error != "" {
		payload["error"] = st.Error
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	o.appendHistory(ctx, sess, spec.Message{
		Role:     spec.RoleTool,
		ToolName: st.ToolName,
		Content:  string(b),
	})
}

func (o *Orchestrator) synthesize(ctx context.Context, sess *sessionstore.Session, lastPlan spec.PlanResponse, sysCtx string) (string, error) {
	if strings.TrimSpace(lastPlan.Answer) != "" {
		return lastPlan.Answer, nil
	}

	planReq := spec.PlanRequest{
		SystemContext: sysCtx,
		History:       append([]spec.Message(nil), sess.History...),
		Trace:         sess.Trace.Snapshot(),
	}

	if sp, ok := o.planner.(spec.StreamingPlanner); ok {
		answer, err := o.synthesizeStreaming(ctx, sess, sp, planReq)
		if err == nil && strings.TrimSpace(answer) != "" {
			return answer, nil
		}
		if err != nil {
			return "", err
		}
	}

	resp, err := o.planWithRetry(ctx, planReq)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return fallbackAnswer(sess, spec.TerminationCompleted), nil
	}
	return resp.Answer, nil
}

func (o *Orchestrator) synthesizeStreaming(ctx context.Context, sess *sessionstore.Session, sp spec.StreamingPlanner, req spec.PlanRequest) (string, error) {
	ch, err := sp.PlanStream(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for chunk := range ch {
		if chunk.Text != "" {
			sb.WriteString(chunk.Text)
			sess.Trace.Publish(steptrace.Event{Type: spec.StreamEventAnswerChunk, Chunk: chunk.Text})
		}
		if chunk.Done {
			break
		}
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return sb.String(), nil
}

func (o *Orchestrator) finishCancelled(ctx context.Context, r *run, sess *sessionstore.Session) (spec.AskResponse, error) {
	_ = r.transition(StateCancelled)
	// Finalize anything the executor did not get to; the trace refuses
	// terminal overwrites, so this is safe against stragglers.
	for _, seq := range sess.Trace.Unfinished() {
		_ = sess.Trace.Update(seq, spec.StepStatusFailed, nil, "cancelled")
	}
	r.reason = spec.TerminationCancelled
	r.answer = fallbackAnswer(sess, spec.TerminationCancelled)
	o.logger.DebugContext(ctx, "run cancelled",
		slog.String("session_id", string(sess.ID)),
		slog.Int("turns_used", sess.Budget.TurnsUsed()),
	)
	return assemble(sess, r), nil
}

func (o *Orchestrator) planWithRetry(ctx context.Context, req spec.PlanRequest) (spec.PlanResponse, error) {
	var lastErr error
	delay := o.retry.BaseDelay
	for attempt := 1; attempt <= o.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return spec.PlanResponse{}, err
		}
		resp, err := o.planner.Plan(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt == o.retry.MaxAttempts {
			break
		}
		o.logger.WarnContext(ctx, "planner call failed, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return spec.PlanResponse{}, ctx.Err()
		}
		delay *= 2
	}
	return spec.PlanResponse{}, lastErr
}

func (o *Orchestrator) allowedToolDefs(skill spec.SkillDescriptor) []spec.ToolDefinition {
	byName := map[string]spec.ToolDefinition{}
	for _, d := range o.toolDefs {
		byName[d.Name] = d
	}
	out := make([]spec.ToolDefinition, 0, len(skill.AllowedTools))
	for _, name := range skill.AllowedTools {
		if d, ok := byName[name]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, spec.ToolDefinition{Name: name})
	}
	return out
}

func (o *Orchestrator) loadHistory(ctx context.Context, id spec.SessionID) ([]spec.Message, error) {
	if o.history == nil {
		return nil, nil
	}
	return o.history.LoadHistory(ctx, id)
}

// appendHistory updates the session cache and writes through to the
// external store best-effort: a store failure degrades persistence, not
// the run.
func (o *Orchestrator) appendHistory(ctx context.Context, sess *sessionstore.Session, msg spec.Message) {
	sess.History = append(sess.History, msg)
	if o.history == nil {
		return
	}
	if err := o.history.AppendHistory(ctx, sess.ID, msg); err != nil {
		o.logger.WarnContext(ctx, "history append failed",
			slog.String("session_id", string(sess.ID)),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) recordSpanError(ctx context.Context, err error) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}
