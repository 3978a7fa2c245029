// Package prompt renders the planner system context for a routed skill:
// its free-text instructions, declared inputs with provided values, and
// the allowed tool catalog, as XML-tagged sections.
package prompt

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/flexigpt/agentengine-go/spec"
)

type skillInstructions struct {
	XMLName xml.Name `xml:"skill_instructions"`
	Name    string   `xml:"name,attr"`
	Model   string   `xml:"model,attr,omitempty"`
	Body    string   `xml:",cdata"`
}

type skillInputs struct {
	XMLName xml.Name     `xml:"skill_inputs"`
	Inputs  []skillInput `xml:"input"`
}

type skillInput struct {
	Name        string `xml:"name,attr"`
	Required    bool   `xml:"required,attr,omitempty"`
	Description string `xml:"description,omitempty"`
	Value       string `xml:"value,omitempty"`
}

type availableTools struct {
	XMLName xml.Name        `xml:"available_tools"`
	Tools   []availableTool `xml:"tool"`
}

type availableTool struct {
	Name        string `xml:"name,attr"`
	Description string `xml:"description,omitempty"`
}

// SystemContext renders the system context passed verbatim to the
// planner. Sections with no content are omitted.
func SystemContext(skill spec.SkillDescriptor, inputs map[string]any, tools []spec.ToolDefinition) (string, error) {
	var sections []string

	if strings.TrimSpace(skill.Instructions) != "" {
		b, err := xml.MarshalIndent(skillInstructions{
			Name:  skill.Name,
			Model: skill.Model,
			Body:  skill.Instructions,
		}, "", "  ")
		if err != nil {
			return "", fmt.Errorf("xml encode instructions: %w", err)
		}
		sections = append(sections, string(b))
	}

	if len(skill.Inputs) > 0 {
		in := skillInputs{Inputs: make([]skillInput, 0, len(skill.Inputs))}
		for _, f := range skill.Inputs {
			it := skillInput{
				Name:        f.Name,
				Required:    f.Required,
				Description: f.Description,
			}
			if v, ok := inputs[f.Name]; ok {
				it.Value = renderValue(v)
			}
			in.Inputs = append(in.Inputs, it)
		}
		b, err := xml.MarshalIndent(in, "", "  ")
		if err != nil {
			return "", fmt.Errorf("xml encode inputs: %w", err)
		}
		sections = append(sections, string(b))
	}

	if len(tools) > 0 {
		tl := availableTools{Tools: make([]availableTool, 0, len(tools))}
		for _, t := range tools {
			tl.Tools = append(tl.Tools, availableTool{Name: t.Name, Description: t.Description})
		}
		b, err := xml.MarshalIndent(tl, "", "  ")
		if err != nil {
			return "", fmt.Errorf("xml encode tools: %w", err)
		}
		sections = append(sections, string(b))
	}

	return strings.Join(sections, "\n"), nil
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
