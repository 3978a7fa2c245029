package agentengine

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/flexigpt/agentengine-go/spec"
)

type engineOptions struct {
	logger *slog.Logger
	tracer trace.Tracer

	planner  spec.Planner
	invoker  spec.ToolInvoker
	memory   spec.MemoryStore
	history  spec.HistoryStore
	toolDefs []spec.ToolDefinition

	skillDirs []string

	routeThreshold float64

	maxConcurrentToolCalls int
	maxToolCallsPerTurn    int
	toolCallTimeout        time.Duration
	turnTimeout            time.Duration
	sessionTimeout         time.Duration

	sessionTTL  time.Duration
	maxSessions int

	retryAttempts int
	retryBase     time.Duration
}

type Option func(*engineOptions) error

func WithLogger(l *slog.Logger) Option {
	return func(o *engineOptions) error {
		o.logger = l
		return nil
	}
}

// WithTracer enables span emission around runs and tool executions.
func WithTracer(t trace.Tracer) Option {
	return func(o *engineOptions) error {
		o.tracer = t
		return nil
	}
}

// WithPlanner sets the completion boundary. Required.
func WithPlanner(p spec.Planner) Option {
	return func(o *engineOptions) error {
		if p == nil {
			return errors.New("nil planner")
		}
		o.planner = p
		return nil
	}
}

// WithToolInvoker sets the tool execution boundary. Without one, every
// tool call fails at invocation time.
func WithToolInvoker(inv spec.ToolInvoker) Option {
	return func(o *engineOptions) error {
		o.invoker = inv
		return nil
	}
}

// WithToolDefinitions sets the engine-wide tool catalog surfaced to the
// planner. Skills see only the subset their header allows.
func WithToolDefinitions(defs []spec.ToolDefinition) Option {
	return func(o *engineOptions) error {
		o.toolDefs = append([]spec.ToolDefinition(nil), defs...)
		return nil
	}
}

func WithMemoryStore(m spec.MemoryStore) Option {
	return func(o *engineOptions) error {
		o.memory = m
		return nil
	}
}

func WithHistoryStore(h spec.HistoryStore) Option {
	return func(o *engineOptions) error {
		o.history = h
		return nil
	}
}

// WithSkillDirs loads each listed skill directory into the catalog during
// New.
func WithSkillDirs(dirs ...string) Option {
	return func(o *engineOptions) error {
		o.skillDirs = append(o.skillDirs, dirs...)
		return nil
	}
}

// WithRouteThreshold overrides the minimum description-similarity a skill
// must clear when no explicit hint matches.
func WithRouteThreshold(min float64) Option {
	return func(o *engineOptions) error {
		if min < 0 || min > 1 {
			return errors.New("route threshold must be in [0, 1]")
		}
		o.routeThreshold = min
		return nil
	}
}

// WithMaxConcurrentToolCalls caps sibling tool executions within a turn.
func WithMaxConcurrentToolCalls(n int) Option {
	return func(o *engineOptions) error {
		if n < 0 {
			return errors.New("max concurrent tool calls must be >= 0")
		}
		o.maxConcurrentToolCalls = n
		return nil
	}
}

// WithMaxToolCallsPerTurn caps tool-call admissions per planner turn.
func WithMaxToolCallsPerTurn(n int) Option {
	return func(o *engineOptions) error {
		if n < 0 {
			return errors.New("max tool calls per turn must be >= 0")
		}
		o.maxToolCallsPerTurn = n
		return nil
	}
}

// WithToolCallTimeout bounds a single tool invocation.
func WithToolCallTimeout(d time.Duration) Option {
	return func(o *engineOptions) error {
		o.toolCallTimeout = d
		return nil
	}
}

// WithTurnTimeout bounds one turn's whole tool batch; unfinished steps
// are failed and the turn proceeds.
func WithTurnTimeout(d time.Duration) Option {
	return func(o *engineOptions) error {
		o.turnTimeout = d
		return nil
	}
}

// WithSessionTimeout sets the wall-clock budget deadline per run. Zero
// disables the deadline.
func WithSessionTimeout(d time.Duration) Option {
	return func(o *engineOptions) error {
		o.sessionTimeout = d
		return nil
	}
}

func WithSessionTTL(ttl time.Duration) Option {
	return func(o *engineOptions) error {
		o.sessionTTL = ttl
		return nil
	}
}

func WithMaxSessions(maxSessions int) Option {
	return func(o *engineOptions) error {
		o.maxSessions = maxSessions
		return nil
	}
}

// WithPlannerRetry configures planner retry: attempts in total and the
// first delay of the doubling backoff.
func WithPlannerRetry(attempts int, baseDelay time.Duration) Option {
	return func(o *engineOptions) error {
		if attempts < 1 {
			return errors.New("planner retry attempts must be >= 1")
		}
		o.retryAttempts = attempts
		o.retryBase = baseDelay
		return nil
	}
}
