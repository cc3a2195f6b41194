package handoff

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Type controls whether a handoff is audible to the caller.
type Type string

const (
	// TypeAnnounced plays the target agent's greeting.
	TypeAnnounced Type = "announced"
	// TypeDiscrete switches agents silently.
	TypeDiscrete Type = "discrete"
)

// Valid reports whether t is a known handoff type.
func (t Type) Valid() bool {
	return t == TypeAnnounced || t == TypeDiscrete
}

// Wildcard matches any source agent in a scenario edge.
const Wildcard = "*"

// DefaultGenericToolName is the tool injected for generic handoffs.
const DefaultGenericToolName = "handoff_to_agent"

// Config is the presentation of one (source, target) handoff.
type Config struct {
	Type         Type `json:"type" yaml:"type"`
	ShareContext bool `json:"share_context" yaml:"share_context"`
}

// ScenarioProvider supplies handoff presentation settings.
type ScenarioProvider interface {
	HandoffConfig(source, target string) Config
	// GenericHandoffTool returns the catch-all handoff tool name for
	// source, or false when none should be injected.
	GenericHandoffTool(source string) (string, bool)
	// AllowsHandoff reports whether a generic handoff may go from source to target.
	AllowsHandoff(source, target string) bool
}

// StaticScenario returns the same configuration for every pair and never
// injects a generic handoff tool.
type StaticScenario struct {
	Config Config
}

// DefaultScenario announces every handoff and shares context.
func DefaultScenario() StaticScenario {
	return StaticScenario{Config: Config{Type: TypeAnnounced, ShareContext: true}}
}

// HandoffConfig implements ScenarioProvider.
func (s StaticScenario) HandoffConfig(string, string) Config { return s.Config }

// GenericHandoffTool implements ScenarioProvider.
func (s StaticScenario) GenericHandoffTool(string) (string, bool) { return "", false }

// AllowsHandoff implements ScenarioProvider.
func (s StaticScenario) AllowsHandoff(string, string) bool { return false }

// Edge configures handoffs from one agent to another. Unset fields inherit
// the scenario defaults.
type Edge struct {
	From         string `json:"from" yaml:"from"`
	To           string `json:"to" yaml:"to"`
	Type         Type   `json:"type,omitempty" yaml:"type"`
	ShareContext *bool  `json:"share_context,omitempty" yaml:"share_context"`
}

// ScenarioDefaults apply to pairs without an edge.
type ScenarioDefaults struct {
	HandoffType  Type `json:"handoff_type" yaml:"handoff_type"`
	ShareContext bool `json:"share_context" yaml:"share_context"`
}

// GenericHandoff configures the catch-all handoff tool.
type GenericHandoff struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	ToolName string `json:"tool_name,omitempty" yaml:"tool_name"`
}

// Scenario is a YAML-described set of handoff edges.
type Scenario struct {
	Name           string           `json:"name" yaml:"name"`
	Defaults       ScenarioDefaults `json:"defaults" yaml:"defaults"`
	Edges          []Edge           `json:"edges" yaml:"edges"`
	GenericHandoff GenericHandoff   `json:"generic_handoff" yaml:"generic_handoff"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes a scenario and fills defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	s := &Scenario{Defaults: ScenarioDefaults{HandoffType: TypeAnnounced, ShareContext: true}}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if s.Defaults.HandoffType == "" {
		s.Defaults.HandoffType = TypeAnnounced
	}
	if s.GenericHandoff.Enabled && s.GenericHandoff.ToolName == "" {
		s.GenericHandoff.ToolName = DefaultGenericToolName
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scenario) validate() error {
	if !s.Defaults.HandoffType.Valid() {
		return fmt.Errorf("%w: unknown default handoff type %q", ErrInvalidScenario, s.Defaults.HandoffType)
	}
	seen := make(map[[2]string]struct{}, len(s.Edges))
	for i, e := range s.Edges {
		if e.From == "" || e.To == "" {
			return fmt.Errorf("%w: edge %d needs from and to", ErrInvalidScenario, i)
		}
		if e.Type != "" && !e.Type.Valid() {
			return fmt.Errorf("%w: edge %s->%s has unknown type %q", ErrInvalidScenario, e.From, e.To, e.Type)
		}
		key := [2]string{e.From, e.To}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: edge %s->%s declared twice", ErrInvalidScenario, e.From, e.To)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// edge returns the most specific edge for the pair. An exact source wins
// over the wildcard.
func (s *Scenario) edge(source, target string) (Edge, bool) {
	var wildcard *Edge
	for i := range s.Edges {
		e := &s.Edges[i]
		if e.To != target {
			continue
		}
		if e.From == source {
			return *e, true
		}
		if e.From == Wildcard && wildcard == nil {
			wildcard = e
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return Edge{}, false
}

// HandoffConfig implements ScenarioProvider.
func (s *Scenario) HandoffConfig(source, target string) Config {
	cfg := Config{Type: s.Defaults.HandoffType, ShareContext: s.Defaults.ShareContext}
	e, ok := s.edge(source, target)
	if !ok {
		return cfg
	}
	if e.Type != "" {
		cfg.Type = e.Type
	}
	if e.ShareContext != nil {
		cfg.ShareContext = *e.ShareContext
	}
	return cfg
}

// Targets lists the agents source may hand off to, in declaration order.
func (s *Scenario) Targets(source string) []string {
	var out []string
	for _, e := range s.Edges {
		if (e.From == source || e.From == Wildcard) && e.To != source && !slices.Contains(out, e.To) {
			out = append(out, e.To)
		}
	}
	return out
}

// GenericHandoffTool implements ScenarioProvider. The tool is only
// injected for agents with at least one outgoing edge.
func (s *Scenario) GenericHandoffTool(source string) (string, bool) {
	if !s.GenericHandoff.Enabled || len(s.Targets(source)) == 0 {
		return "", false
	}
	return s.GenericHandoff.ToolName, true
}

// AllowsHandoff implements ScenarioProvider.
func (s *Scenario) AllowsHandoff(source, target string) bool {
	if !s.GenericHandoff.Enabled {
		return false
	}
	_, ok := s.edge(source, target)
	return ok && source != target
}

// Check reports edges naming agents for which known returns false.
func (s *Scenario) Check(known func(name string) bool) []error {
	var errs []error
	for _, e := range s.Edges {
		if e.From != Wildcard && !known(e.From) {
			errs = append(errs, fmt.Errorf("%w: edge %s->%s: unknown source agent", ErrInvalidScenario, e.From, e.To))
		}
		if !known(e.To) {
			errs = append(errs, fmt.Errorf("%w: edge %s->%s: unknown target agent", ErrInvalidScenario, e.From, e.To))
		}
	}
	return errs
}
