// Package enginetool bridges the engine into an llmtools-go Registry so a
// host agent can delegate work to it as an ordinary tool call, and
// converts llmtools tool specs into the planner-facing tool definitions.
package enginetool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flexigpt/llmtools-go"
	llmtoolsgoSpec "github.com/flexigpt/llmtools-go/spec"

	"github.com/flexigpt/agentengine-go/spec"
)

const FuncIDAgentAsk llmtoolsgoSpec.FuncID = "github.com/flexigpt/agentengine-go/enginetool.Ask"

// AskArgs is the wire shape of one agent.ask invocation.
type AskArgs struct {
	SessionID string            `json:"session_id,omitempty"`
	Skill     string            `json:"skill,omitempty"`
	Text      string            `json:"text"`
	Inputs    map[string]string `json:"inputs,omitempty"`
}

// AskResult is agent.ask output: the answer plus run accounting; the
// full step trace stays inside the engine.
type AskResult struct {
	Answer            string `json:"answer"`
	TerminationReason string `json:"termination_reason"`
	TurnsUsed         int    `json:"turns_used"`
	Steps             int    `json:"steps"`
}

// Register registers agent.ask into an existing llmtools-go Registry,
// bound to the given engine.
func Register(r *llmtools.Registry, eng spec.Engine) error {
	if r == nil {
		return errors.New("nil registry")
	}
	if eng == nil {
		return errors.New("nil engine")
	}

	// "agent.ask" -> typed -> text output (JSON).
	return llmtools.RegisterTypedAsTextTool[AskArgs, AskResult](
		r,
		AgentAskTool(),
		func(ctx context.Context, args AskArgs) (AskResult, error) {
			var inputs map[string]any
			if len(args.Inputs) > 0 {
				inputs = make(map[string]any, len(args.Inputs))
				for k, v := range args.Inputs {
					inputs[k] = v
				}
			}
			resp, err := eng.Ask(ctx, spec.AskRequest{
				SessionID: spec.SessionID(args.SessionID),
				SkillName: args.Skill,
				Text:      args.Text,
				Inputs:    inputs,
			})
			if err != nil {
				return AskResult{}, err
			}
			return AskResult{
				Answer:            resp.Answer,
				TerminationReason: string(resp.Metadata.TerminationReason),
				TurnsUsed:         resp.Metadata.Budget.TurnsUsed,
				Steps:             len(resp.Steps),
			}, nil
		},
	)
}

// NewRegistry creates an llmtools-go Registry with only agent.ask in it.
func NewRegistry(eng spec.Engine, opts ...llmtools.RegistryOption) (*llmtools.Registry, error) {
	if eng == nil {
		return nil, errors.New("nil engine")
	}
	r, err := llmtools.NewRegistry(opts...)
	if err != nil {
		return nil, err
	}
	if err := Register(r, eng); err != nil {
		return nil, err
	}
	return r, nil
}

func Tools() []llmtoolsgoSpec.Tool {
	return []llmtoolsgoSpec.Tool{AgentAskTool()}
}

func AgentAskTool() llmtoolsgoSpec.Tool {
	return llmtoolsgoSpec.Tool{
		SchemaVersion: llmtoolsgoSpec.SchemaVersion,
		ID:            "01a0c2f4-5b1e-7aa0-9007-de55935d2a01",
		Slug:          "agent.ask",
		Version:       "v1.0.0",
		DisplayName:   "Agent Ask",
		Description:   "Delegate a task to the agent engine; it routes to a skill, runs the plan/execute loop, and returns the final answer.",
		Tags:          []string{"agent"},
		ArgSchema: llmtoolsgoSpec.JSONSchema(`{
		  "$schema":"http://json-schema.org/draft-07/schema#",
		  "type":"object",
		  "properties":{
		    "session_id":{"type":"string","description":"Optional session to continue; a new one is created when omitted."},
		    "skill":{"type":"string","description":"Optional skill name hint."},
		    "text":{"type":"string"},
		    "inputs":{"type":"object","additionalProperties":{"type":"string"}}
		  },
		  "required":["text"],
		  "additionalProperties":false
		}`),
		GoImpl:     llmtoolsgoSpec.GoToolImpl{FuncID: FuncIDAgentAsk},
		CreatedAt:  llmtoolsgoSpec.SchemaStartTime,
		ModifiedAt: llmtoolsgoSpec.SchemaStartTime,
	}
}

// ToolDefinitions converts llmtools tool specs into planner-facing tool
// definitions, parsing each ArgSchema JSON document into the generic
// input schema map.
func ToolDefinitions(tools []llmtoolsgoSpec.Tool) ([]spec.ToolDefinition, error) {
	out := make([]spec.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		def := spec.ToolDefinition{
			Name:        string(t.Slug),
			Description: t.Description,
		}
		if s := string(t.ArgSchema); s != "" {
			schema := map[string]any{}
			if err := json.Unmarshal([]byte(s), &schema); err != nil {
				return nil, fmt.Errorf("tool %q: invalid arg schema: %w", t.Slug, err)
			}
			def.InputSchema = schema
		}
		out = append(out, def)
	}
	return out, nil
}
