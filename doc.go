// Package agentengine orchestrates skill-scoped agent runs. A request is
// routed to one skill from the catalog, then driven through a bounded
// plan/execute loop: a planner proposes steps, the engine validates,
// de-duplicates, and executes them under per-session budgets, and every
// action is recorded in an ordered step trace that callers can stream.
//
// Skills are declared in SKILL.md files (see package fscatalog) and are
// immutable once loaded. The planner, tool invoker, and state stores are
// caller-supplied boundaries; the engine itself holds no model or
// transport code.
package agentengine
