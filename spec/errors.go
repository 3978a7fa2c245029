package spec

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSkillNotFound is returned when routing cannot resolve a skill:
	// no catalog entry matches the explicit hint and no description
	// clears the confidence threshold. No session is created.
	ErrSkillNotFound = errors.New("skill not found")

	// ErrSkillAlreadyExists is returned when adding a skill whose name
	// is already present in the catalog.
	ErrSkillAlreadyExists = errors.New("skill already exists")

	// ErrInvalidSkillDir is returned when a directory does not contain a
	// valid SKILL.md or its descriptor header fails validation.
	ErrInvalidSkillDir = errors.New("invalid skill directory")

	// ErrBudgetExceeded is returned by turn admission once the turn
	// budget or session deadline is spent. It is expected and non-fatal:
	// the orchestrator synthesizes a partial answer instead of failing.
	ErrBudgetExceeded = errors.New("turn budget exceeded")

	// ErrToolBudgetExceeded is returned by tool-call admission when the
	// per-turn tool-call cap is spent. Affected steps are denied; the
	// turn continues.
	ErrToolBudgetExceeded = errors.New("tool call budget exceeded")

	// ErrPlannerFailure is returned when planner invocation fails after
	// all retry attempts. It is session-fatal.
	ErrPlannerFailure = errors.New("planner failure")

	ErrSessionNotFound = errors.New("session not found")
)
