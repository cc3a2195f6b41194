package definition

import (
	"fmt"
	"maps"
	"slices"

	"github.com/BaSui01/voiceflow/agent/render"
)

// VoiceConfig describes the synthesized voice of an agent.
type VoiceConfig struct {
	Name  string `json:"name" yaml:"name"`
	Style string `json:"style,omitempty" yaml:"style"`
	Rate  string `json:"rate,omitempty" yaml:"rate"`
	Pitch string `json:"pitch,omitempty" yaml:"pitch"`
}

// ModelConfig describes the model deployment serving an agent.
type ModelConfig struct {
	DeploymentID string  `json:"deployment_id" yaml:"deployment_id"`
	Temperature  float64 `json:"temperature" yaml:"temperature"`
	TopP         float64 `json:"top_p" yaml:"top_p"`
	MaxTokens    int     `json:"max_tokens" yaml:"max_tokens"`

	// Variants holds per-mode replacements, e.g. "realtime" or "cascade".
	Variants map[string]ModelConfig `json:"variants,omitempty" yaml:"variants"`
}

// ForMode returns the variant configured for mode, or the config itself.
// The returned config never carries nested variants.
func (m ModelConfig) ForMode(mode string) ModelConfig {
	if v, ok := m.Variants[mode]; ok && mode != "" {
		v.Variants = nil
		return v
	}
	out := m
	out.Variants = nil
	return out
}

// Clone returns a deep copy including variants.
func (m ModelConfig) Clone() ModelConfig {
	out := m
	if m.Variants != nil {
		out.Variants = make(map[string]ModelConfig, len(m.Variants))
		for k, v := range m.Variants {
			out.Variants[k] = v.Clone()
		}
	}
	return out
}

// Definition is the immutable description of one agent.
type Definition struct {
	Name                   string         `json:"name" yaml:"name"`
	Description            string         `json:"description,omitempty" yaml:"description"`
	PromptTemplate         string         `json:"prompt_template" yaml:"prompt"`
	GreetingTemplate       string         `json:"greeting_template,omitempty" yaml:"greeting"`
	ReturnGreetingTemplate string         `json:"return_greeting_template,omitempty" yaml:"return_greeting"`
	HandoffTrigger         string         `json:"handoff_trigger,omitempty" yaml:"handoff_trigger"`
	Voice                  VoiceConfig    `json:"voice" yaml:"voice"`
	Model                  ModelConfig    `json:"model" yaml:"model"`
	ToolNames              []string       `json:"tool_names,omitempty" yaml:"tools"`
	TemplateVariables      map[string]any `json:"template_variables,omitempty" yaml:"template_vars"`
	SessionSettings        map[string]any `json:"session_settings,omitempty" yaml:"session"`
}

// Clone returns a deep copy that shares no mutable state with d.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	out.Model = d.Model.Clone()
	out.ToolNames = slices.Clone(d.ToolNames)
	out.TemplateVariables = maps.Clone(d.TemplateVariables)
	out.SessionSettings = cloneSettings(d.SessionSettings)
	return &out
}

// HasTool reports whether the agent lists the named tool.
func (d *Definition) HasTool(name string) bool {
	return slices.Contains(d.ToolNames, name)
}

// Validate checks the structural constraints of a definition.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: agent name is required", ErrInvalidDefinition)
	}
	seen := make(map[string]struct{}, len(d.ToolNames))
	for _, tool := range d.ToolNames {
		if tool == "" {
			return fmt.Errorf("%w: agent %s has an empty tool name", ErrInvalidDefinition, d.Name)
		}
		if _, dup := seen[tool]; dup {
			return fmt.Errorf("%w: agent %s lists tool %s twice", ErrInvalidDefinition, d.Name, tool)
		}
		seen[tool] = struct{}{}
	}
	if d.Model.Temperature < 0 || d.Model.Temperature > 2 {
		return fmt.Errorf("%w: agent %s temperature must be between 0 and 2", ErrInvalidDefinition, d.Name)
	}
	if d.Model.TopP < 0 || d.Model.TopP > 1 {
		return fmt.Errorf("%w: agent %s top_p must be between 0 and 1", ErrInvalidDefinition, d.Name)
	}
	if d.Model.MaxTokens < 0 {
		return fmt.Errorf("%w: agent %s max_tokens must not be negative", ErrInvalidDefinition, d.Name)
	}
	return nil
}

// RenderPrompt renders the prompt template with the agent's template
// variables layered under vars. On failure the raw template is returned
// together with the render error.
func (d *Definition) RenderPrompt(r render.Renderer, vars map[string]any) (string, error) {
	return render.RenderOrRaw(r, d.PromptTemplate, render.MergeVars(d.TemplateVariables, vars))
}

func cloneSettings(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneSettings(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
