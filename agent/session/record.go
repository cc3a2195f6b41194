package session

import (
	"maps"
	"slices"
	"time"

	"github.com/BaSui01/voiceflow/agent/definition"
)

// Source identifies who wrote an override.
type Source string

const (
	SourceBase      Source = "base"
	SourceSession   Source = "session"
	SourceAPI       Source = "api"
	SourceAdmin     Source = "admin"
	SourceTransport Source = "transport"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourceBase, SourceSession, SourceAPI, SourceAdmin, SourceTransport:
		return true
	}
	return false
}

// OverrideRecord holds one session's overrides for one agent. Nil pointer
// fields mean "not overridden". ToolsSet distinguishes an explicit empty
// tool list from no tool override.
type OverrideRecord struct {
	BaseAgentName     string                  `json:"base_agent_name"`
	Prompt            *string                 `json:"prompt,omitempty"`
	Voice             *definition.VoiceConfig `json:"voice,omitempty"`
	Model             *definition.ModelConfig `json:"model,omitempty"`
	Tools             []string                `json:"tools,omitempty"`
	ToolsSet          bool                    `json:"tools_set,omitempty"`
	Greeting          *string                 `json:"greeting,omitempty"`
	TemplateVars      map[string]any          `json:"template_vars,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	LastModifiedAt    time.Time               `json:"last_modified_at"`
	ModificationCount int64                   `json:"modification_count"`
	Source            Source                  `json:"source"`
}

func newRecord(name string, now time.Time) *OverrideRecord {
	return &OverrideRecord{
		BaseAgentName:  name,
		CreatedAt:      now,
		LastModifiedAt: now,
		Source:         SourceBase,
	}
}

// HasOverrides reports whether any field is overridden.
func (r *OverrideRecord) HasOverrides() bool {
	if r == nil {
		return false
	}
	return r.Prompt != nil ||
		r.Voice != nil ||
		r.Model != nil ||
		r.ToolsSet ||
		r.Greeting != nil ||
		len(r.TemplateVars) > 0
}

// Clone returns a deep copy.
func (r *OverrideRecord) Clone() OverrideRecord {
	out := *r
	if r.Prompt != nil {
		p := *r.Prompt
		out.Prompt = &p
	}
	if r.Voice != nil {
		v := *r.Voice
		out.Voice = &v
	}
	if r.Model != nil {
		m := r.Model.Clone()
		out.Model = &m
	}
	if r.Greeting != nil {
		g := *r.Greeting
		out.Greeting = &g
	}
	out.Tools = slices.Clone(r.Tools)
	out.TemplateVars = maps.Clone(r.TemplateVars)
	return out
}

// apply builds the effective definition from base and the record.
func (r *OverrideRecord) apply(base *definition.Definition) *definition.Definition {
	eff := base.Clone()
	if r.Prompt != nil {
		eff.PromptTemplate = *r.Prompt
	}
	if r.Voice != nil {
		eff.Voice = *r.Voice
	}
	if r.Model != nil {
		eff.Model = r.Model.Clone()
	}
	if r.ToolsSet {
		eff.ToolNames = append([]string{}, r.Tools...)
	}
	if r.Greeting != nil {
		eff.GreetingTemplate = *r.Greeting
		eff.ReturnGreetingTemplate = *r.Greeting
	}
	if len(r.TemplateVars) > 0 {
		merged := make(map[string]any, len(eff.TemplateVariables)+len(r.TemplateVars))
		maps.Copy(merged, eff.TemplateVariables)
		maps.Copy(merged, r.TemplateVars)
		eff.TemplateVariables = merged
	}
	return eff
}
