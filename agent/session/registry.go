package session

import (
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/internal/metrics"
)

// ChangeHook is called after every state change, on the writer's goroutine.
type ChangeHook func(r *Registry)

// Option configures a Registry.
type Option func(*Registry)

// WithEagerRecords creates an empty record for every base agent up front.
func WithEagerRecords() Option {
	return func(r *Registry) { r.eager = true }
}

// WithChangeHook registers the post-write hook.
func WithChangeHook(hook ChangeHook) Option {
	return func(r *Registry) { r.hook = hook }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry is the per-session override store. It is not safe for
// concurrent writers; see Manager.With.
type Registry struct {
	sessionID string
	base      *definition.Registry

	records      map[string]*OverrideRecord
	customAgents map[string]*definition.Definition
	customOrder  []string
	handoffMap   map[string]string
	activeAgent  string
	experimentID string
	variant      string
	createdAt    time.Time

	eager   bool
	hook    ChangeHook
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// New creates the override store for one session, seeding the handoff map
// from the base agents' triggers.
func New(sessionID string, base *definition.Registry, opts ...Option) *Registry {
	r := &Registry{
		sessionID:    sessionID,
		base:         base,
		records:      make(map[string]*OverrideRecord),
		customAgents: make(map[string]*definition.Definition),
		logger:       zap.NewNop(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(
		zap.String("component", "session_registry"),
		zap.String("session_id", sessionID),
	)
	r.createdAt = r.now()
	r.handoffMap = base.HandoffTriggers(r.logger)

	if r.eager {
		for _, name := range base.List() {
			r.records[name] = newRecord(name, r.createdAt)
		}
	}
	return r
}

// SessionID returns the session identifier.
func (r *Registry) SessionID() string { return r.sessionID }

// CreatedAt returns when the registry was created.
func (r *Registry) CreatedAt() time.Time { return r.createdAt }

// Base returns the shared agent registry.
func (r *Registry) Base() *definition.Registry { return r.base }

// Has reports whether name is a custom or base agent.
func (r *Registry) Has(name string) bool {
	if _, ok := r.customAgents[name]; ok {
		return true
	}
	return r.base.Has(name)
}

// IsCustom reports whether name is a session-created agent.
func (r *Registry) IsCustom(name string) bool {
	_, ok := r.customAgents[name]
	return ok
}

// AgentNames lists base agents in load order followed by custom agents in
// registration order.
func (r *Registry) AgentNames() []string {
	return append(r.base.List(), r.customOrder...)
}

func (r *Registry) requireAgent(name string) error {
	if !r.Has(name) {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	return nil
}

func (r *Registry) changed() {
	if r.hook != nil {
		r.hook(r)
	}
}

// =============================================================================
// 🔍 Override Resolver
// =============================================================================

// ResolveEffective returns the definition the session should use for name.
// Custom agents are returned as-is. A base agent without overrides is
// returned as the shared pointer; callers must treat it as read-only.
func (r *Registry) ResolveEffective(name string) (*definition.Definition, error) {
	if custom, ok := r.customAgents[name]; ok {
		return custom, nil
	}
	base, ok := r.base.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, name)
	}
	rec := r.records[name]
	if !rec.HasOverrides() {
		return base, nil
	}
	return rec.apply(base), nil
}

// Record returns a copy of the override record for name.
func (r *Registry) Record(name string) (OverrideRecord, bool) {
	rec, ok := r.records[name]
	if !ok {
		return OverrideRecord{}, false
	}
	return rec.Clone(), true
}

// =============================================================================
// ✏️ Override writes
// =============================================================================

// ApplyOverride validates and writes one override field for name. Custom
// agents resolve as registered, so writes to them are rejected; register a
// new definition instead.
func (r *Registry) ApplyOverride(name string, o Override, source Source) error {
	if err := r.requireAgent(name); err != nil {
		return err
	}
	if r.IsCustom(name) {
		return fmt.Errorf("%w: %s is a custom agent; remove and register it again to change it", ErrInvalidOverride, name)
	}
	if err := o.validate(name); err != nil {
		return err
	}
	if source == "" {
		source = SourceSession
	}
	if !source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidOverride, source)
	}

	now := r.now()
	rec, ok := r.records[name]
	if !ok {
		rec = newRecord(name, now)
		r.records[name] = rec
	}
	o.writeTo(rec)
	rec.LastModifiedAt = now
	rec.ModificationCount++
	rec.Source = source

	r.metrics.RecordOverrideWrite(string(o.Kind), string(source))
	r.logger.Debug("override written",
		zap.String("agent", name),
		zap.String("kind", string(o.Kind)),
		zap.String("source", string(source)),
		zap.Int64("modification_count", rec.ModificationCount),
	)
	r.changed()
	return nil
}

// SetPromptOverride replaces the prompt template for name.
func (r *Registry) SetPromptOverride(name, prompt string, source Source) error {
	return r.ApplyOverride(name, Override{Kind: KindPrompt, Prompt: prompt}, source)
}

// SetVoiceOverride replaces the voice configuration for name.
func (r *Registry) SetVoiceOverride(name string, voice definition.VoiceConfig, source Source) error {
	return r.ApplyOverride(name, Override{Kind: KindVoice, Voice: voice}, source)
}

// SetModelOverride replaces the model configuration for name.
func (r *Registry) SetModelOverride(name string, model definition.ModelConfig, source Source) error {
	return r.ApplyOverride(name, Override{Kind: KindModel, Model: model}, source)
}

// SetToolsOverride replaces the tool list for name. The list is never merged
// with the base or a previous override.
func (r *Registry) SetToolsOverride(name string, tools []string, source Source) error {
	return r.ApplyOverride(name, Override{Kind: KindTools, Tools: tools}, source)
}

// SetGreetingOverride replaces both greeting templates for name.
func (r *Registry) SetGreetingOverride(name, greeting string, source Source) error {
	return r.ApplyOverride(name, Override{Kind: KindGreeting, Greeting: greeting}, source)
}

// MergeTemplateVariables layers vars over earlier template-variable overrides.
func (r *Registry) MergeTemplateVariables(name string, vars map[string]any, source Source) error {
	return r.ApplyOverride(name, Override{Kind: KindTemplateVars, TemplateVars: vars}, source)
}

// Reset discards the override record for name.
func (r *Registry) Reset(name string) error {
	if err := r.requireAgent(name); err != nil {
		return err
	}
	if _, ok := r.records[name]; !ok {
		return nil
	}
	delete(r.records, name)
	r.logger.Info("overrides reset", zap.String("agent", name))
	r.changed()
	return nil
}

// ResetAll discards every override record. Active agent, experiment and
// variant are kept.
func (r *Registry) ResetAll() {
	n := len(r.records)
	r.records = make(map[string]*OverrideRecord)
	r.logger.Info("all overrides reset", zap.Int("records", n))
	r.changed()
}

// =============================================================================
// 🧩 Custom agents
// =============================================================================

// RegisterCustomAgent adds a session-only agent. A name already used by a
// base or custom agent returns ErrAgentExists. A trigger that is already
// mapped is taken over by the new agent and the conflict is logged.
func (r *Registry) RegisterCustomAgent(def *definition.Definition) error {
	if def == nil {
		return fmt.Errorf("%w: custom agent definition is required", ErrInvalidOverride)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if r.Has(def.Name) {
		return fmt.Errorf("%w: %s", ErrAgentExists, def.Name)
	}

	r.customAgents[def.Name] = def.Clone()
	r.customOrder = append(r.customOrder, def.Name)

	if token := def.HandoffTrigger; token != "" {
		if prev, exists := r.handoffMap[token]; exists && prev != def.Name {
			r.logger.Warn("custom agent trigger replaces existing mapping",
				zap.String("token", token),
				zap.String("previous", prev),
				zap.String("agent", def.Name),
				zap.Error(ErrCustomAgentConflict),
			)
			r.metrics.RecordCustomAgentChange("conflict")
		}
		r.handoffMap[token] = def.Name
	}

	r.metrics.RecordCustomAgentChange("registered")
	r.logger.Info("custom agent registered", zap.String("agent", def.Name))
	r.changed()
	return nil
}

// RemoveCustomAgent deletes a session-only agent, every handoff mapping
// targeting it and its override record. Removing the active agent clears
// the active agent.
func (r *Registry) RemoveCustomAgent(name string) error {
	if _, ok := r.customAgents[name]; !ok {
		return fmt.Errorf("%w: %s is not a custom agent", ErrUnknownAgent, name)
	}

	delete(r.customAgents, name)
	r.customOrder = slices.DeleteFunc(r.customOrder, func(n string) bool { return n == name })
	delete(r.records, name)
	for token, target := range r.handoffMap {
		if target == name {
			delete(r.handoffMap, token)
		}
	}
	if r.activeAgent == name {
		r.logger.Warn("active custom agent removed", zap.String("agent", name))
		r.activeAgent = ""
	}

	r.metrics.RecordCustomAgentChange("removed")
	r.logger.Info("custom agent removed", zap.String("agent", name))
	r.changed()
	return nil
}

// CustomAgents lists custom agent names in registration order.
func (r *Registry) CustomAgents() []string {
	return slices.Clone(r.customOrder)
}

// =============================================================================
// 🔀 Handoff map, active agent, experiment
// =============================================================================

// HandoffTarget returns the agent mapped to token.
func (r *Registry) HandoffTarget(token string) (string, bool) {
	name, ok := r.handoffMap[token]
	return name, ok
}

// HandoffMap returns a copy of the token map.
func (r *Registry) HandoffMap() map[string]string {
	out := make(map[string]string, len(r.handoffMap))
	for k, v := range r.handoffMap {
		out[k] = v
	}
	return out
}

// SetHandoffMapping maps token to an existing agent.
func (r *Registry) SetHandoffMapping(token, agent string) error {
	if token == "" {
		return fmt.Errorf("%w: handoff token is required", ErrInvalidOverride)
	}
	if err := r.requireAgent(agent); err != nil {
		return err
	}
	r.handoffMap[token] = agent
	r.changed()
	return nil
}

// RemoveHandoffMapping deletes token and reports whether it existed.
func (r *Registry) RemoveHandoffMapping(token string) bool {
	if _, ok := r.handoffMap[token]; !ok {
		return false
	}
	delete(r.handoffMap, token)
	r.changed()
	return true
}

// ActiveAgent returns the active agent name, or "" when none.
func (r *Registry) ActiveAgent() string { return r.activeAgent }

// SetActiveAgent makes name the single active agent.
func (r *Registry) SetActiveAgent(name string) error {
	if err := r.requireAgent(name); err != nil {
		return err
	}
	r.activeAgent = name
	r.changed()
	return nil
}

// Experiment returns the A/B experiment tags.
func (r *Registry) Experiment() (id, variant string) {
	return r.experimentID, r.variant
}

// SetExperiment records the A/B experiment tags.
func (r *Registry) SetExperiment(id, variant string) {
	r.experimentID = id
	r.variant = variant
	r.changed()
}
