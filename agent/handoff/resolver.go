package handoff

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/greeting"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/types"
)

const instrumentationName = "github.com/BaSui01/voiceflow/agent/handoff"

// System variable keys rewritten on every handoff.
const (
	VarActiveAgent   = "active_agent"
	VarPreviousAgent = "previous_agent"
	VarSessionID     = "session_id"
)

// DefaultBaselineKeys survive a handoff that does not share context.
var DefaultBaselineKeys = []string{"session_id", "client_id", "caller_name", "institution_name"}

// Request is one handoff attempt.
type Request struct {
	// Token is the handoff tool name the model invoked.
	Token string `json:"token,omitempty"`
	// TargetAgent names the target directly; used by ResolveGeneric.
	TargetAgent string `json:"target_agent,omitempty"`
	// SourceAgent defaults to the session's active agent.
	SourceAgent      string         `json:"source_agent,omitempty"`
	SystemVars       map[string]any `json:"system_vars,omitempty"`
	FirstVisit       bool           `json:"first_visit"`
	GreetingOverride string         `json:"greeting_override,omitempty"`
}

// Resolution is the outcome of a handoff attempt. On failure Success is
// false, Reason and Err explain why, and the session is unchanged.
type Resolution struct {
	Success       bool           `json:"success"`
	SourceAgent   string         `json:"source_agent,omitempty"`
	TargetAgent   string         `json:"target_agent,omitempty"`
	Type          Type           `json:"handoff_type,omitempty"`
	ShareContext  bool           `json:"share_context"`
	GreetOnSwitch bool           `json:"greet_on_switch"`
	Greeting      string         `json:"greeting,omitempty"`
	SystemVars    map[string]any `json:"system_vars,omitempty"`
	Reason        string         `json:"reason,omitempty"`

	// Agent is the effective definition of the target.
	Agent *definition.Definition `json:"-"`
	Err   error                  `json:"-"`
}

// ErrorCode returns the code of a failed resolution, or "".
func (r Resolution) ErrorCode() types.ErrorCode {
	return types.GetErrorCode(r.Err)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithBaselineKeys replaces the keys kept when context is not shared.
func WithBaselineKeys(keys ...string) Option {
	return func(r *Resolver) { r.baselineKeys = slices.Clone(keys) }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Resolver) { r.metrics = c }
}

// WithTracerProvider sets the tracer provider. Defaults to the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Resolver) {
		if tp != nil {
			r.tracer = tp.Tracer(instrumentationName)
		}
	}
}

// Resolver runs the handoff state machine against a session.
type Resolver struct {
	scenario     ScenarioProvider
	greeter      *greeting.Selector
	baselineKeys []string
	logger       *zap.Logger
	metrics      *metrics.Collector
	tracer       trace.Tracer
}

// NewResolver creates a Resolver. A nil scenario announces every handoff
// and shares context.
func NewResolver(scenario ScenarioProvider, greeter *greeting.Selector, opts ...Option) *Resolver {
	if scenario == nil {
		scenario = DefaultScenario()
	}
	if greeter == nil {
		greeter = greeting.NewSelector(nil, nil)
	}
	r := &Resolver{
		scenario:     scenario,
		greeter:      greeter,
		baselineKeys: slices.Clone(DefaultBaselineKeys),
		logger:       zap.NewNop(),
		tracer:       otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "handoff_resolver"))
	return r
}

// Scenario returns the scenario provider.
func (r *Resolver) Scenario() ScenarioProvider { return r.scenario }

// =============================================================================
// 🔀 交接解析
// =============================================================================

// Resolve resolves a handoff token against the session's handoff map and,
// on success, makes the target the session's active agent.
func (r *Resolver) Resolve(ctx context.Context, sess *session.Registry, req Request) Resolution {
	ctx, span := r.tracer.Start(ctx, "handoff.resolve", trace.WithAttributes(
		attribute.String("session.id", sess.SessionID()),
		attribute.String("handoff.token", req.Token),
	))
	defer span.End()

	start := time.Now()
	source := r.source(sess, req)

	target, ok := sess.HandoffTarget(req.Token)
	if !ok {
		err := fmt.Errorf("%w: token %q", ErrUnknownHandoffTarget, req.Token)
		return r.fail(ctx, span, source, "", err, start)
	}
	return r.complete(ctx, span, sess, source, target, req, start)
}

// ResolveGeneric resolves a handoff that names its target directly, as
// issued through the scenario's generic handoff tool.
func (r *Resolver) ResolveGeneric(ctx context.Context, sess *session.Registry, req Request) Resolution {
	ctx, span := r.tracer.Start(ctx, "handoff.resolve_generic", trace.WithAttributes(
		attribute.String("session.id", sess.SessionID()),
		attribute.String("handoff.target", req.TargetAgent),
	))
	defer span.End()

	start := time.Now()
	source := r.source(sess, req)

	if !r.scenario.AllowsHandoff(source, req.TargetAgent) {
		err := fmt.Errorf("%w: %s -> %s", ErrHandoffNotAllowed, orNone(source), req.TargetAgent)
		return r.fail(ctx, span, source, req.TargetAgent, err, start)
	}
	return r.complete(ctx, span, sess, source, req.TargetAgent, req, start)
}

// Start activates the first agent of a session. It always greets as a
// first visit and falls back to the default greeting.
func (r *Resolver) Start(ctx context.Context, sess *session.Registry, agent string, vars map[string]any) Resolution {
	_, span := r.tracer.Start(ctx, "handoff.start", trace.WithAttributes(
		attribute.String("session.id", sess.SessionID()),
		attribute.String("handoff.target", agent),
	))
	defer span.End()

	start := time.Now()
	def, err := sess.ResolveEffective(agent)
	if err != nil {
		return r.fail(ctx, span, "", agent, err, start)
	}

	sysVars := maps.Clone(vars)
	if sysVars == nil {
		sysVars = make(map[string]any)
	}
	sysVars[VarSessionID] = sess.SessionID()
	sysVars[VarActiveAgent] = agent
	delete(sysVars, VarPreviousAgent)

	text := r.greeter.SessionStart(def, sysVars)
	// A forced greeting applies to this turn only.
	delete(sysVars, greeting.OverrideVar)
	if err := sess.SetActiveAgent(agent); err != nil {
		return r.fail(ctx, span, "", agent, err, start)
	}

	res := Resolution{
		Success:       true,
		TargetAgent:   agent,
		Type:          TypeAnnounced,
		ShareContext:  true,
		GreetOnSwitch: true,
		Greeting:      text,
		SystemVars:    sysVars,
		Agent:         def,
	}
	r.succeed(span, res, start)
	return res
}

func (r *Resolver) source(sess *session.Registry, req Request) string {
	if req.SourceAgent != "" {
		return req.SourceAgent
	}
	return sess.ActiveAgent()
}

func (r *Resolver) complete(ctx context.Context, span trace.Span, sess *session.Registry, source, target string, req Request, start time.Time) Resolution {
	def, err := sess.ResolveEffective(target)
	if err != nil {
		return r.fail(ctx, span, source, target, err, start)
	}

	cfg := r.scenario.HandoffConfig(source, target)
	if !cfg.Type.Valid() {
		cfg.Type = TypeAnnounced
	}

	sysVars := r.seedContext(sess, req.SystemVars, cfg.ShareContext)
	sysVars[VarPreviousAgent] = source
	sysVars[VarActiveAgent] = target

	greetOnSwitch := cfg.Type == TypeAnnounced
	text := r.greeter.Select(greeting.Request{
		Agent:         def,
		Vars:          sysVars,
		FirstVisit:    req.FirstVisit,
		GreetOnSwitch: greetOnSwitch,
		Override:      req.GreetingOverride,
	})
	delete(sysVars, greeting.OverrideVar)

	if err := sess.SetActiveAgent(target); err != nil {
		return r.fail(ctx, span, source, target, err, start)
	}

	res := Resolution{
		Success:       true,
		SourceAgent:   source,
		TargetAgent:   target,
		Type:          cfg.Type,
		ShareContext:  cfg.ShareContext,
		GreetOnSwitch: greetOnSwitch,
		Greeting:      text,
		SystemVars:    sysVars,
		Agent:         def,
	}
	r.succeed(span, res, start)
	return res
}

// seedContext builds the target's render context. Without sharing only the
// baseline keys carry over.
func (r *Resolver) seedContext(sess *session.Registry, prior map[string]any, share bool) map[string]any {
	var out map[string]any
	if share {
		out = maps.Clone(prior)
	} else {
		out = make(map[string]any, len(r.baselineKeys)+2)
		for _, k := range r.baselineKeys {
			if v, ok := prior[k]; ok {
				out[k] = v
			}
		}
	}
	if out == nil {
		out = make(map[string]any)
	}
	if _, ok := out[VarSessionID]; !ok {
		out[VarSessionID] = sess.SessionID()
	}
	return out
}

func (r *Resolver) succeed(span trace.Span, res Resolution, start time.Time) {
	span.SetAttributes(
		attribute.Bool("handoff.success", true),
		attribute.String("handoff.source", res.SourceAgent),
		attribute.String("handoff.target", res.TargetAgent),
		attribute.String("handoff.type", string(res.Type)),
		attribute.Bool("handoff.share_context", res.ShareContext),
	)
	r.metrics.RecordHandoff(res.SourceAgent, res.TargetAgent, string(res.Type), "success", time.Since(start))
	r.logger.Info("handoff resolved",
		zap.String("source", orNone(res.SourceAgent)),
		zap.String("target", res.TargetAgent),
		zap.String("type", string(res.Type)),
		zap.Bool("greeting", res.Greeting != ""),
	)
}

func (r *Resolver) fail(ctx context.Context, span trace.Span, source, target string, err error, start time.Time) Resolution {
	code := types.GetErrorCode(err)
	if code == "" {
		code = types.ErrInternalError
	}
	span.SetAttributes(
		attribute.Bool("handoff.success", false),
		attribute.String("error.code", string(code)),
		attribute.String("error", err.Error()),
	)
	r.metrics.RecordHandoff(source, target, "", string(code), time.Since(start))

	level := r.logger.Warn
	if errors.Is(ctx.Err(), context.Canceled) {
		level = r.logger.Debug
	}
	level("handoff failed",
		zap.String("source", orNone(source)),
		zap.String("target", target),
		zap.String("code", string(code)),
		zap.Error(err),
	)

	return Resolution{
		Success:     false,
		SourceAgent: source,
		TargetAgent: target,
		Reason:      err.Error(),
		Err:         err,
	}
}

// =============================================================================
// 🧰 工具注入
// =============================================================================

// ToolsFor returns the effective tool names of agent, plus the generic
// handoff tool when the scenario injects one.
func (r *Resolver) ToolsFor(sess *session.Registry, agent string) ([]string, error) {
	def, err := sess.ResolveEffective(agent)
	if err != nil {
		return nil, err
	}
	tools := slices.Clone(def.ToolNames)
	if name, ok := r.scenario.GenericHandoffTool(agent); ok && !slices.Contains(tools, name) {
		tools = append(tools, name)
	}
	return tools, nil
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
