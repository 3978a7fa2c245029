package spec

import "context"

// Role identifies the author of a history message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one history entry exchanged between the engine, the planner,
// and the history store.
type Message struct {
	Role     Role   `json:"role"`
	Content  string `json:"content,omitempty"`
	ToolName string `json:"tool_name,omitempty"`
}

// ToolDefinition declares a callable capability surfaced to the planner.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// ProposedStep is one action a planner proposes within a turn.
type ProposedStep struct {
	Kind      StepKind       `json:"kind"`
	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// PlanRequest is the input to one planner invocation.
type PlanRequest struct {
	// SystemContext carries the active skill's instructions, declared
	// inputs, and tool catalog, rendered by the engine.
	SystemContext string

	History []Message

	// Trace is the session's trace so far, with results folded in.
	Trace []PlanStep

	Tools []ToolDefinition
}

// PlanResponse is planner output consumed as data by the orchestrator's
// transition function. Done with no steps (or an explicit Answer) signals
// completion.
type PlanResponse struct {
	Steps  []ProposedStep `json:"steps,omitempty"`
	Done   bool           `json:"done,omitempty"`
	Answer string         `json:"answer,omitempty"`
}

// Planner is the external completion service proposing the next steps or
// signalling completion. Only one planner call is outstanding per session
// at a time.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (PlanResponse, error)
}

// PlanChunk is one increment of a streaming planner completion.
type PlanChunk struct {
	Text string
	Done bool
}

// StreamingPlanner is implemented by planners that support incremental
// synthesis output. When available, the orchestrator uses it for the
// final synthesis call and forwards chunks to stream subscribers.
type StreamingPlanner interface {
	Planner
	PlanStream(ctx context.Context, req PlanRequest) (<-chan PlanChunk, error)
}

// ToolResult is the structured output of one tool invocation. Ordinary
// domain failures are reported in Error, not via the invoker's error
// return.
type ToolResult struct {
	Content map[string]any `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// ToolInvoker executes tool calls. It must be safe to call concurrently
// for distinct calls. The error return is reserved for transport-level
// failures.
type ToolInvoker interface {
	Invoke(ctx context.Context, toolName string, arguments map[string]any) (ToolResult, error)
}

// MemorySnippet is one recalled memory fragment.
type MemorySnippet struct {
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// MemoryStore is the read-only, eventually consistent vector memory
// boundary.
type MemoryStore interface {
	Recall(ctx context.Context, query string) ([]MemorySnippet, error)
}

// HistoryStore is the relational state/history boundary. Writes are
// expected to be serialized per session on the store's side.
type HistoryStore interface {
	AppendHistory(ctx context.Context, sessionID SessionID, msg Message) error
	LoadHistory(ctx context.Context, sessionID SessionID) ([]Message, error)
}

// Engine is the orchestration surface consumed by tool bridges
// (package enginetool) without importing the root package.
type Engine interface {
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}
