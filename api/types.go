package api

import (
	"time"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/agent/supervisor"
)

// =============================================================================
// Agent catalogue
// =============================================================================

// AgentSummary is one entry of GET /api/v1/agents.
type AgentSummary struct {
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	HandoffTrigger string   `json:"handoff_trigger,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	Voice          string   `json:"voice,omitempty"`
	DeploymentID   string   `json:"deployment_id,omitempty"`
}

// NewAgentSummary summarizes a definition.
func NewAgentSummary(d *definition.Definition) AgentSummary {
	return AgentSummary{
		Name:           d.Name,
		Description:    d.Description,
		HandoffTrigger: d.HandoffTrigger,
		Tools:          d.ToolNames,
		Voice:          d.Voice.Name,
		DeploymentID:   d.Model.DeploymentID,
	}
}

// =============================================================================
// Sessions
// =============================================================================

// Experiment carries A/B tags.
type Experiment struct {
	ID      string `json:"id"`
	Variant string `json:"variant"`
}

// SessionSummary is the body of GET /api/v1/sessions/{id}.
type SessionSummary struct {
	SessionID    string            `json:"session_id"`
	CreatedAt    time.Time         `json:"created_at"`
	ActiveAgent  string            `json:"active_agent,omitempty"`
	Agents       []string          `json:"agents"`
	CustomAgents []string          `json:"custom_agents,omitempty"`
	Experiment   Experiment        `json:"experiment"`
	HandoffMap   map[string]string `json:"handoff_map"`
}

// NewSessionSummary reads a summary from a session registry.
func NewSessionSummary(r *session.Registry) SessionSummary {
	id, variant := r.Experiment()
	return SessionSummary{
		SessionID:    r.SessionID(),
		CreatedAt:    r.CreatedAt(),
		ActiveAgent:  r.ActiveAgent(),
		Agents:       r.AgentNames(),
		CustomAgents: r.CustomAgents(),
		Experiment:   Experiment{ID: id, Variant: variant},
		HandoffMap:   r.HandoffMap(),
	}
}

// EffectiveAgent is the body of GET /api/v1/sessions/{id}/agents/{name}.
type EffectiveAgent struct {
	Agent  *definition.Definition  `json:"agent"`
	Custom bool                    `json:"custom"`
	Record *session.OverrideRecord `json:"record,omitempty"`
}

// OverridePatch is the body of PATCH /api/v1/sessions/{id}/agents/{name}.
// Nil fields are left untouched. Tools uses a pointer so an explicit empty
// list clears the agent's tools.
type OverridePatch struct {
	Source       session.Source          `json:"source,omitempty"`
	Prompt       *string                 `json:"prompt,omitempty"`
	Voice        *definition.VoiceConfig `json:"voice,omitempty"`
	Model        *definition.ModelConfig `json:"model,omitempty"`
	Tools        *[]string               `json:"tools,omitempty"`
	Greeting     *string                 `json:"greeting,omitempty"`
	TemplateVars map[string]any          `json:"template_vars,omitempty"`
}

// Overrides expands the patch in a fixed field order.
func (p OverridePatch) Overrides() []session.Override {
	var out []session.Override
	if p.Prompt != nil {
		out = append(out, session.Override{Kind: session.KindPrompt, Prompt: *p.Prompt})
	}
	if p.Voice != nil {
		out = append(out, session.Override{Kind: session.KindVoice, Voice: *p.Voice})
	}
	if p.Model != nil {
		out = append(out, session.Override{Kind: session.KindModel, Model: *p.Model})
	}
	if p.Tools != nil {
		out = append(out, session.Override{Kind: session.KindTools, Tools: *p.Tools})
	}
	if p.Greeting != nil {
		out = append(out, session.Override{Kind: session.KindGreeting, Greeting: *p.Greeting})
	}
	if p.TemplateVars != nil {
		out = append(out, session.Override{Kind: session.KindTemplateVars, TemplateVars: p.TemplateVars})
	}
	return out
}

// =============================================================================
// Handoffs
// =============================================================================

// StartRequest is the body of POST /api/v1/sessions/{id}/start.
type StartRequest struct {
	Agent      string         `json:"agent"`
	SystemVars map[string]any `json:"system_vars,omitempty"`
}

// HandoffRequest is the body of POST /api/v1/sessions/{id}/handoff. Exactly
// one of Token and TargetAgent is set. FirstVisit defaults to true.
type HandoffRequest struct {
	Token            string         `json:"token,omitempty"`
	TargetAgent      string         `json:"target_agent,omitempty"`
	SourceAgent      string         `json:"source_agent,omitempty"`
	SystemVars       map[string]any `json:"system_vars,omitempty"`
	FirstVisit       *bool          `json:"first_visit,omitempty"`
	GreetingOverride string         `json:"greeting_override,omitempty"`
}

// ToResolverRequest converts the body for the resolver.
func (r HandoffRequest) ToResolverRequest() handoff.Request {
	first := true
	if r.FirstVisit != nil {
		first = *r.FirstVisit
	}
	return handoff.Request{
		Token:            r.Token,
		TargetAgent:      r.TargetAgent,
		SourceAgent:      r.SourceAgent,
		SystemVars:       r.SystemVars,
		FirstVisit:       first,
		GreetingOverride: r.GreetingOverride,
	}
}

// HandoffResponse adds the target's tool list to a resolution.
type HandoffResponse struct {
	handoff.Resolution
	Tools []string `json:"tools,omitempty"`
}

// =============================================================================
// Advisories
// =============================================================================

// AdvisoryRequest is the body of POST /api/v1/sessions/{id}/advisories.
// Empty Advisors uses the configured default set; zero TimeoutMS uses the
// configured timeout.
type AdvisoryRequest struct {
	Advisors  []string           `json:"advisors,omitempty"`
	Context   supervisor.Context `json:"context"`
	TimeoutMS int                `json:"timeout_ms,omitempty"`
}
