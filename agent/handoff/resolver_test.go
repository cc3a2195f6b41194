package handoff

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/greeting"
	"github.com/BaSui01/voiceflow/agent/render"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/testutil/fixtures"
	"github.com/BaSui01/voiceflow/types"
)

func newResolver(t *testing.T, scenario ScenarioProvider, opts ...Option) *Resolver {
	t.Helper()
	greeter := greeting.NewSelector(render.NewTextRenderer(), zap.NewNop())
	return NewResolver(scenario, greeter, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
}

func newSession(t *testing.T) *session.Registry {
	t.Helper()
	return session.New("sess-handoff", fixtures.Registry())
}

func TestResolve_EndToEnd(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	r := newResolver(t, DefaultScenario())

	assert.Empty(t, sess.ActiveAgent())

	res := r.Resolve(ctx, sess, Request{
		Token:       "go-fraud",
		SourceAgent: fixtures.Concierge,
		SystemVars:  map[string]any{"caller_name": "Sam"},
		FirstVisit:  true,
	})
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, fixtures.FraudAgent, res.TargetAgent)
	assert.Equal(t, fixtures.Concierge, res.SourceAgent)
	assert.Equal(t, TypeAnnounced, res.Type)
	assert.True(t, res.GreetOnSwitch)
	assert.Equal(t, "You're through to the fraud team, Sam.", res.Greeting)
	assert.Equal(t, fixtures.FraudAgent, res.SystemVars[VarActiveAgent])
	assert.Equal(t, fixtures.Concierge, res.SystemVars[VarPreviousAgent])
	assert.Equal(t, fixtures.FraudAgent, sess.ActiveAgent())
	require.NotNil(t, res.Agent)
	assert.Equal(t, fixtures.FraudAgent, res.Agent.Name)

	res = r.Resolve(ctx, sess, Request{Token: "go-nowhere"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrUnknownHandoffTarget)
	assert.Equal(t, types.ErrUnknownHandoffTarget, res.ErrorCode())
	assert.Contains(t, res.Reason, "go-nowhere")
	assert.Equal(t, fixtures.FraudAgent, res.SourceAgent)
	assert.Equal(t, fixtures.FraudAgent, sess.ActiveAgent())
}

func TestResolve_SourceDefaultsToActiveAgent(t *testing.T) {
	sess := newSession(t)
	require.NoError(t, sess.SetActiveAgent(fixtures.FraudAgent))

	res := newResolver(t, nil).Resolve(context.Background(), sess, Request{Token: "go-concierge"})
	require.True(t, res.Success)
	assert.Equal(t, fixtures.FraudAgent, res.SourceAgent)
	assert.Equal(t, fixtures.FraudAgent, res.SystemVars[VarPreviousAgent])
}

func TestResolve_RemovedCustomAgentTokenIsUnknown(t *testing.T) {
	sess := newSession(t)
	custom := fixtures.BillingDefinition()
	custom.Name = "PromoAgent"
	custom.HandoffTrigger = "go-promo"
	require.NoError(t, sess.RegisterCustomAgent(custom))
	require.NoError(t, sess.SetActiveAgent(fixtures.Concierge))
	require.NoError(t, sess.RemoveCustomAgent("PromoAgent"))
	res := newResolver(t, nil).Resolve(context.Background(), sess, Request{Token: "go-promo"})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrUnknownHandoffTarget)
	assert.Equal(t, fixtures.Concierge, sess.ActiveAgent())
}

func TestResolve_CustomAgentTarget(t *testing.T) {
	sess := newSession(t)
	custom := fixtures.BillingDefinition()
	custom.Name = "PromoAgent"
	custom.HandoffTrigger = "go-promo"
	custom.GreetingTemplate = "Promo desk."
	require.NoError(t, sess.RegisterCustomAgent(custom))

	res := newResolver(t, nil).Resolve(context.Background(), sess, Request{
		Token: "go-promo", SourceAgent: fixtures.Concierge, FirstVisit: true,
	})
	require.True(t, res.Success)
	assert.Equal(t, "PromoAgent", sess.ActiveAgent())
	assert.Equal(t, "Promo desk.", res.Greeting)
}

func TestResolve_DiscreteHandoffPlaysNoGreeting(t *testing.T) {
	sess := newSession(t)
	r := newResolver(t, StaticScenario{Config: Config{Type: TypeDiscrete, ShareContext: true}})

	for _, first := range []bool{true, false} {
		res := r.Resolve(context.Background(), sess, Request{Token: "go-billing", SourceAgent: fixtures.Concierge, FirstVisit: first})
		require.True(t, res.Success)
		assert.False(t, res.GreetOnSwitch)
		assert.Empty(t, res.Greeting)
	}
}

func TestResolve_GreetingOverrideWinsEvenWhenDiscrete(t *testing.T) {
	sess := newSession(t)
	r := newResolver(t, StaticScenario{Config: Config{Type: TypeDiscrete}})

	res := r.Resolve(context.Background(), sess, Request{
		Token: "go-fraud", SourceAgent: fixtures.Concierge, GreetingOverride: "Transferring you now.",
	})
	require.True(t, res.Success)
	assert.Equal(t, "Transferring you now.", res.Greeting)
}

func TestResolve_GreetingOverrideVarIsNotCarriedForward(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t)
	r := newResolver(t, StaticScenario{Config: Config{Type: TypeAnnounced, ShareContext: true}})

	start := r.Start(ctx, sess, fixtures.Concierge, map[string]any{greeting.OverrideVar: "Forced hello."})
	require.True(t, start.Success)
	assert.Equal(t, "Forced hello.", start.Greeting)
	assert.NotContains(t, start.SystemVars, greeting.OverrideVar)

	res := r.Resolve(ctx, sess, Request{
		Token:      "go-fraud",
		SystemVars: map[string]any{greeting.OverrideVar: "Forced transfer.", "caller_name": "Sam"},
		FirstVisit: true,
	})
	require.True(t, res.Success)
	assert.Equal(t, "Forced transfer.", res.Greeting)
	assert.NotContains(t, res.SystemVars, greeting.OverrideVar)

	next := r.Resolve(ctx, sess, Request{Token: "go-billing", SystemVars: res.SystemVars, FirstVisit: true})
	require.True(t, next.Success)
	assert.Equal(t, "Billing here.", next.Greeting, "the forced greeting applies to one turn")
	assert.Equal(t, "Sam", next.SystemVars["caller_name"])
}

func TestResolve_ReturnVisitUsesReturnGreeting(t *testing.T) {
	sess := newSession(t)
	r := newResolver(t, nil)

	res := r.Resolve(context.Background(), sess, Request{Token: "go-fraud", SourceAgent: fixtures.Concierge})
	require.True(t, res.Success)
	assert.Equal(t, "Fraud team again.", res.Greeting)

	res = r.Resolve(context.Background(), sess, Request{Token: "go-billing"})
	require.True(t, res.Success)
	assert.Equal(t, greeting.DefaultReturnGreeting, res.Greeting)
}

func TestResolve_ShareContext(t *testing.T) {
	prior := map[string]any{
		"client_id":    "c-42",
		"caller_name":  "Sam",
		"last_intent":  "card_lost",
		VarActiveAgent: fixtures.Concierge,
	}

	t.Run("shared", func(t *testing.T) {
		sess := newSession(t)
		res := newResolver(t, StaticScenario{Config: Config{Type: TypeAnnounced, ShareContext: true}}).
			Resolve(context.Background(), sess, Request{Token: "go-fraud", SourceAgent: fixtures.Concierge, SystemVars: prior})
		require.True(t, res.Success)
		assert.Equal(t, "card_lost", res.SystemVars["last_intent"])
		assert.Equal(t, fixtures.FraudAgent, res.SystemVars[VarActiveAgent])
		assert.Equal(t, "sess-handoff", res.SystemVars[VarSessionID])
		// The caller's map is not mutated.
		assert.Equal(t, fixtures.Concierge, prior[VarActiveAgent])
	})

	t.Run("baseline only", func(t *testing.T) {
		sess := newSession(t)
		res := newResolver(t, StaticScenario{Config: Config{Type: TypeAnnounced}}).
			Resolve(context.Background(), sess, Request{Token: "go-fraud", SourceAgent: fixtures.Concierge, SystemVars: prior})
		require.True(t, res.Success)
		assert.NotContains(t, res.SystemVars, "last_intent")
		assert.Equal(t, "c-42", res.SystemVars["client_id"])
		assert.Equal(t, "Sam", res.SystemVars["caller_name"])
		assert.Equal(t, fixtures.FraudAgent, res.SystemVars[VarActiveAgent])
		assert.Equal(t, fixtures.Concierge, res.SystemVars[VarPreviousAgent])
	})

	t.Run("custom baseline keys", func(t *testing.T) {
		sess := newSession(t)
		res := newResolver(t, StaticScenario{Config: Config{Type: TypeAnnounced}}, WithBaselineKeys("last_intent")).
			Resolve(context.Background(), sess, Request{Token: "go-fraud", SourceAgent: fixtures.Concierge, SystemVars: prior})
		require.True(t, res.Success)
		assert.Equal(t, "card_lost", res.SystemVars["last_intent"])
		assert.NotContains(t, res.SystemVars, "client_id")
	})
}

func TestResolve_UsesEffectiveDefinition(t *testing.T) {
	sess := newSession(t)
	require.NoError(t, sess.SetGreetingOverride(fixtures.FraudAgent, "Operator greeting.", session.SourceAdmin))

	res := newResolver(t, nil).Resolve(context.Background(), sess, Request{Token: "go-fraud", SourceAgent: fixtures.Concierge, FirstVisit: true})
	require.True(t, res.Success)
	assert.Equal(t, "Operator greeting.", res.Greeting)
	assert.Equal(t, "Operator greeting.", res.Agent.GreetingTemplate)
}

func TestStart(t *testing.T) {
	sess := newSession(t)
	r := newResolver(t, nil)

	res := r.Start(context.Background(), sess, fixtures.Concierge, map[string]any{"caller_name": "Sam"})
	require.True(t, res.Success)
	assert.Equal(t, "Hi, this is Ava from Contoso Bank. How can I help?", res.Greeting)
	assert.Equal(t, fixtures.Concierge, sess.ActiveAgent())
	assert.Empty(t, res.SourceAgent)
	assert.NotContains(t, res.SystemVars, VarPreviousAgent)

	sess = newSession(t)
	res = r.Start(context.Background(), sess, fixtures.Supervisor, nil)
	require.True(t, res.Success)
	assert.Equal(t, greeting.DefaultGreeting, res.Greeting)

	res = r.Start(context.Background(), newSession(t), "Nobody", nil)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, session.ErrUnknownAgent)
}

func TestResolveGeneric(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: banking
edges:
  - from: Concierge
    to: FraudAgent
  - from: Concierge
    to: BillingAgent
    type: discrete
generic_handoff:
  enabled: true
`))
	require.NoError(t, err)

	sess := newSession(t)
	require.NoError(t, sess.SetActiveAgent(fixtures.Concierge))
	r := newResolver(t, scenario)

	res := r.ResolveGeneric(context.Background(), sess, Request{TargetAgent: fixtures.Billing})
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, TypeDiscrete, res.Type)
	assert.Empty(t, res.Greeting)
	assert.Equal(t, fixtures.Billing, sess.ActiveAgent())

	// No edge from BillingAgent.
	res = r.ResolveGeneric(context.Background(), sess, Request{TargetAgent: fixtures.FraudAgent})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrHandoffNotAllowed)
	assert.Equal(t, fixtures.Billing, sess.ActiveAgent())
}

func TestToolsFor(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
edges:
  - {from: Concierge, to: FraudAgent}
generic_handoff: {enabled: true, tool_name: transfer}
`))
	require.NoError(t, err)
	sess := newSession(t)
	r := newResolver(t, scenario)

	tools, err := r.ToolsFor(sess, fixtures.Concierge)
	require.NoError(t, err)
	assert.Equal(t, []string{"lookup_account", "go-fraud", "go-billing", "transfer"}, tools)

	tools, err = r.ToolsFor(sess, fixtures.FraudAgent)
	require.NoError(t, err)
	assert.Equal(t, []string{"freeze_card", "go-concierge"}, tools)

	require.NoError(t, sess.SetToolsOverride(fixtures.Concierge, []string{"transfer"}, session.SourceAPI))
	tools, err = r.ToolsFor(sess, fixtures.Concierge)
	require.NoError(t, err)
	assert.Equal(t, []string{"transfer"}, tools)

	_, err = r.ToolsFor(sess, "Nobody")
	assert.ErrorIs(t, err, session.ErrUnknownAgent)
}

func TestResolve_Observability(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	sess := newSession(t)
	r := newResolver(t, nil, WithMetrics(collector), WithTracerProvider(tp))

	r.Resolve(context.Background(), sess, Request{Token: "go-fraud", SourceAgent: fixtures.Concierge})
	r.Resolve(context.Background(), sess, Request{Token: "go-nowhere"})

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "handoff.resolve", spans[0].Name())

	attrs := map[string]any{}
	for _, kv := range spans[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, false, attrs["handoff.success"])
	assert.Equal(t, string(types.ErrUnknownHandoffTarget), attrs["error.code"])

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "test_handoffs_total"))
}
