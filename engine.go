package agentengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/flexigpt/agentengine-go/fscatalog"
	"github.com/flexigpt/agentengine-go/internal/catalog"
	"github.com/flexigpt/agentengine-go/internal/executor"
	"github.com/flexigpt/agentengine-go/internal/orchestrator"
	"github.com/flexigpt/agentengine-go/internal/router"
	"github.com/flexigpt/agentengine-go/internal/sessionstore"
	"github.com/flexigpt/agentengine-go/spec"
)

// Engine is the orchestration runtime. It owns the skill catalog and the
// live session store; planner, tools, and persistence are injected
// boundaries.
type Engine struct {
	logger   *slog.Logger
	catalog  *catalog.Catalog
	sessions *sessionstore.Store
	orch     *orchestrator.Orchestrator
}

var _ spec.Engine = (*Engine)(nil)

func New(opts ...Option) (*Engine, error) {
	o := &engineOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.planner == nil {
		return nil, errors.New("a planner is required (WithPlanner)")
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.invoker == nil {
		o.invoker = noInvoker{}
	}

	cat := catalog.New()
	sessions := sessionstore.New()
	if o.sessionTTL > 0 {
		sessions.SetTTL(o.sessionTTL)
	}
	if o.maxSessions > 0 {
		sessions.SetMaxSessions(o.maxSessions)
	}

	exec := executor.New(executor.Config{
		Invoker:      o.invoker,
		Logger:       o.logger,
		Tracer:       o.tracer,
		MaxInFlight:  o.maxConcurrentToolCalls,
		CallTimeout:  o.toolCallTimeout,
		BatchTimeout: o.turnTimeout,
	})

	orch, err := orchestrator.New(orchestrator.Config{
		Router:              router.New(cat, router.Config{MinConfidence: o.routeThreshold}),
		Sessions:            sessions,
		Executor:            exec,
		Planner:             o.planner,
		History:             o.history,
		Memory:              o.memory,
		Logger:              o.logger,
		Tracer:              o.tracer,
		ToolDefs:            o.toolDefs,
		MaxToolCallsPerTurn: o.maxToolCallsPerTurn,
		SessionTimeout:      o.sessionTimeout,
		Retry: orchestrator.RetryConfig{
			MaxAttempts: o.retryAttempts,
			BaseDelay:   o.retryBase,
		},
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		logger:   o.logger,
		catalog:  cat,
		sessions: sessions,
		orch:     orch,
	}
	for _, dir := range o.skillDirs {
		if _, err := e.AddSkillDir(context.Background(), dir); err != nil {
			return nil, fmt.Errorf("load skill dir %q: %w", dir, err)
		}
	}
	return e, nil
}

// AddSkillDir loads the directory's SKILL.md and registers the resulting
// descriptor in the catalog.
func (e *Engine) AddSkillDir(ctx context.Context, dir string) (spec.SkillDescriptor, error) {
	desc, err := fscatalog.Load(ctx, dir)
	if err != nil {
		return spec.SkillDescriptor{}, err
	}
	if err := e.catalog.Add(desc); err != nil {
		return spec.SkillDescriptor{}, err
	}
	e.logger.Debug("skill registered",
		slog.String("skill", desc.Name),
		slog.String("digest", desc.Digest),
	)
	return desc, nil
}

// RemoveSkill deletes a skill from the catalog and returns its
// descriptor. In-flight runs keep the descriptor they routed to.
func (e *Engine) RemoveSkill(name string) (spec.SkillDescriptor, error) {
	return e.catalog.Remove(name)
}

// ListSkills returns all registered descriptors sorted by name.
func (e *Engine) ListSkills() []spec.SkillDescriptor {
	return e.catalog.List()
}

// ReloadSkills re-reads every filesystem-backed descriptor from its
// source directory and swaps the catalog wholesale. Any load or
// validation failure leaves the current catalog untouched. Descriptors
// without a source location are carried over unchanged.
func (e *Engine) ReloadSkills(ctx context.Context) error {
	current := e.catalog.List()
	next := make([]spec.SkillDescriptor, 0, len(current))
	for _, desc := range current {
		if strings.TrimSpace(desc.Location) == "" {
			next = append(next, desc)
			continue
		}
		reloaded, err := fscatalog.Load(ctx, filepath.Dir(desc.Location))
		if err != nil {
			return fmt.Errorf("reload skill %q: %w", desc.Name, err)
		}
		next = append(next, reloaded)
	}
	return e.catalog.Reload(next)
}

// Ask runs one request to completion. See the orchestrator contract:
// routing failure and planner exhaustion return errors; budget
// exhaustion and cancellation return well-formed responses.
func (e *Engine) Ask(ctx context.Context, req spec.AskRequest) (spec.AskResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return spec.AskResponse{}, fmt.Errorf("%w: request text is required", spec.ErrInvalidArgument)
	}
	return e.orch.Run(ctx, req)
}

// noInvoker stands in when no tool boundary is configured. Every call
// fails as a step-level error, so plans degrade instead of panicking.
type noInvoker struct{}

func (noInvoker) Invoke(context.Context, string, map[string]any) (spec.ToolResult, error) {
	return spec.ToolResult{}, errors.New("no tool invoker configured")
}
