package spec

import "time"

// SessionID identifies an engine session (UUIDv7 string).
type SessionID string

// Permission is the capability level a skill runs with.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// InputField declares one named parameter a skill accepts.
type InputField struct {
	Name        string `json:"name"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// SkillDescriptor is the static, validated definition of a skill.
// Descriptors are parsed once at load time and are immutable afterwards;
// the catalog owns them.
type SkillDescriptor struct {
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	AllowedTools []string     `json:"allowed_tools,omitempty"`
	Permission   Permission   `json:"permission"`
	Model        string       `json:"model,omitempty"`
	MaxTurns     int          `json:"max_turns"`
	Inputs       []InputField `json:"inputs,omitempty"`

	// Instructions is the free-text body after the descriptor header,
	// passed verbatim to the planner as system context.
	Instructions string `json:"instructions,omitempty"`

	// Location is the absolute path to the source SKILL.md (when loaded
	// from the filesystem).
	Location string `json:"location,omitempty"`

	// Digest is "sha256:<hex>" over the source document bytes.
	Digest string `json:"digest,omitempty"`
}

// StepKind classifies a planner-proposed action.
type StepKind string

const (
	StepKindToolCall     StepKind = "tool_call"
	StepKindLLMCall      StepKind = "llm_call"
	StepKindMemoryLookup StepKind = "memory_lookup"
)

// StepStatus is the lifecycle state of a plan step. Once created a step
// only ever transitions status and result; its slot in the trace is fixed.
type StepStatus string

const (
	StepStatusPending          StepStatus = "pending"
	StepStatusRunning          StepStatus = "running"
	StepStatusSucceeded        StepStatus = "succeeded"
	StepStatusFailed           StepStatus = "failed"
	StepStatusDenied           StepStatus = "denied"
	StepStatusSkippedDuplicate StepStatus = "skipped_duplicate"
)

// PlanStep is one proposed and tracked action within a turn.
// SequenceNumber is assigned when the step is accepted into a turn's
// batch, strictly increasing across the whole session, and never
// reassigned regardless of completion order.
type PlanStep struct {
	SequenceNumber int            `json:"sequence_number"`
	Turn           int            `json:"turn"`
	Kind           StepKind       `json:"kind"`
	ToolName       string         `json:"tool_name,omitempty"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	Status         StepStatus     `json:"status"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// TerminationReason reports how a session ended.
type TerminationReason string

const (
	TerminationCompleted       TerminationReason = "completed"
	TerminationBudgetExhausted TerminationReason = "budget_exhausted"
	TerminationFailed          TerminationReason = "failed"
	TerminationCancelled       TerminationReason = "cancelled"
)

// BudgetSnapshot is the observable state of a session's budget counters.
type BudgetSnapshot struct {
	TurnsUsed           int       `json:"turns_used"`
	TurnsMax            int       `json:"turns_max"`
	ToolCallsLastTurn   int       `json:"tool_calls_last_turn"`
	ToolCallsMaxPerTurn int       `json:"tool_calls_max_per_turn"`
	Deadline            time.Time `json:"deadline,omitzero"`
}

// Metadata accompanies every engine response.
type Metadata struct {
	TerminationReason TerminationReason `json:"termination_reason"`
	Budget            BudgetSnapshot    `json:"budget"`
}

// AskRequest is the engine's request contract.
type AskRequest struct {
	// SessionID is optional; when set, prior history for the session is
	// loaded from the history store and new messages are appended to it.
	SessionID SessionID `json:"session_id,omitempty"`

	// SkillName is an optional explicit routing hint. An exact catalog
	// match always wins over description similarity.
	SkillName string `json:"skill_name,omitempty"`

	Text   string         `json:"text"`
	Inputs map[string]any `json:"inputs,omitempty"`
}

// AskResponse is the engine's response contract. Callers always receive a
// well-formed response with a non-empty answer, even on budget exhaustion
// or partial failure.
type AskResponse struct {
	Answer   string     `json:"answer"`
	Steps    []PlanStep `json:"steps,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// StreamEventType tags events emitted by the streaming variant.
type StreamEventType string

const (
	StreamEventStepCreated StreamEventType = "step_created"
	StreamEventStepUpdated StreamEventType = "step_updated"
	StreamEventAnswerChunk StreamEventType = "answer_chunk"
	StreamEventFinal       StreamEventType = "final"
)

// StreamEvent is one event of the streaming response: one per step
// transition, optional answer chunks during synthesis, terminated by a
// single final event carrying the assembled response.
type StreamEvent struct {
	Type  StreamEventType `json:"type"`
	Step  *PlanStep       `json:"step,omitempty"`
	Chunk string          `json:"chunk,omitempty"`
	Final *AskResponse    `json:"final,omitempty"`

	// Error is set on the final event instead of Final when the run
	// failed outright (routing or planner exhaustion).
	Error string `json:"error,omitempty"`
}
