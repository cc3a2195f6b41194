// Package greeting selects what an agent says when it becomes active.
package greeting

import (
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/render"
)

const (
	// DefaultReturnGreeting is used when a return greeting renders empty.
	DefaultReturnGreeting = "Welcome back!"

	// DefaultGreeting is used at session start when the agent has no greeting.
	DefaultGreeting = "Hello, how can I help you today?"

	// OverrideVar is the context key carrying an operator-forced greeting.
	OverrideVar = "greeting_override"
)

// Request describes one greeting decision.
type Request struct {
	Agent         *definition.Definition
	Vars          map[string]any
	FirstVisit    bool
	GreetOnSwitch bool
	// Override is played verbatim when non-empty.
	Override string
}

// Option configures a Selector.
type Option func(*Selector)

// WithDefaultGreeting replaces the session-start fallback text.
func WithDefaultGreeting(text string) Option {
	return func(s *Selector) { s.defaultGreeting = text }
}

// Selector implements the greeting priority rules. It keeps no visit state;
// callers track first visits.
type Selector struct {
	renderer        render.Renderer
	defaultGreeting string
	logger          *zap.Logger
}

// NewSelector creates a Selector. A nil renderer plays templates raw.
func NewSelector(renderer render.Renderer, logger *zap.Logger, opts ...Option) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Selector{
		renderer:        renderer,
		defaultGreeting: DefaultGreeting,
		logger:          logger.With(zap.String("component", "greeting_selector")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the greeting text, or "" for none. Priority: explicit
// override, silence when not greeting on switch, then the first-visit or
// return template.
func (s *Selector) Select(req Request) string {
	if text := explicitOverride(req); text != "" {
		return text
	}
	if !req.GreetOnSwitch || req.Agent == nil {
		return ""
	}

	if req.FirstVisit {
		return s.render(req.Agent, req.Agent.GreetingTemplate, req.Vars)
	}

	text := s.render(req.Agent, req.Agent.ReturnGreetingTemplate, req.Vars)
	if strings.TrimSpace(text) == "" {
		return DefaultReturnGreeting
	}
	return text
}

// SessionStart greets the first agent of a session, falling back to the
// default greeting when the agent has no greeting template.
func (s *Selector) SessionStart(agent *definition.Definition, vars map[string]any) string {
	text := s.Select(Request{
		Agent:         agent,
		Vars:          vars,
		FirstVisit:    true,
		GreetOnSwitch: true,
	})
	if strings.TrimSpace(text) == "" {
		return s.defaultGreeting
	}
	return text
}

func explicitOverride(req Request) string {
	if req.Override != "" {
		return req.Override
	}
	if v, ok := req.Vars[OverrideVar].(string); ok {
		return v
	}
	return ""
}

func (s *Selector) render(agent *definition.Definition, tmpl string, vars map[string]any) string {
	if tmpl == "" {
		return ""
	}
	out, err := render.RenderOrRaw(s.renderer, tmpl, render.MergeVars(agent.TemplateVariables, vars))
	if err != nil {
		s.logger.Warn("greeting render failed, using raw template",
			zap.String("agent", agent.Name),
			zap.Error(err),
		)
	}
	return out
}
