package greeting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/render"
	"github.com/BaSui01/voiceflow/testutil/fixtures"
)

func TestSelect(t *testing.T) {
	s := NewSelector(render.NewTextRenderer(), nil)
	concierge := fixtures.ConciergeDefinition()
	billing := fixtures.BillingDefinition()

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "explicit override wins even when discrete",
			req:  Request{Agent: concierge, Override: "Operator text {{.x}}", GreetOnSwitch: false},
			want: "Operator text {{.x}}",
		},
		{
			name: "override from context",
			req:  Request{Agent: concierge, Vars: map[string]any{OverrideVar: "Forced."}, GreetOnSwitch: true},
			want: "Forced.",
		},
		{
			name: "discrete handoff is silent",
			req:  Request{Agent: concierge, FirstVisit: true, GreetOnSwitch: false},
			want: "",
		},
		{
			name: "first visit renders greeting",
			req:  Request{Agent: concierge, FirstVisit: true, GreetOnSwitch: true},
			want: "Hi, this is Ava from Contoso Bank. How can I help?",
		},
		{
			name: "caller vars layer over agent vars",
			req:  Request{Agent: concierge, Vars: map[string]any{"assistant_name": "Max"}, FirstVisit: true, GreetOnSwitch: true},
			want: "Hi, this is Max from Contoso Bank. How can I help?",
		},
		{
			name: "return visit renders return greeting",
			req:  Request{Agent: concierge, GreetOnSwitch: true},
			want: "Back with Ava. Anything else?",
		},
		{
			name: "empty return greeting falls back",
			req:  Request{Agent: billing, GreetOnSwitch: true},
			want: DefaultReturnGreeting,
		},
		{
			name: "first visit without template is silent",
			req:  Request{Agent: &definition.Definition{Name: "Bare"}, FirstVisit: true, GreetOnSwitch: true},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Select(tt.req))
		})
	}
}

func TestSelect_RenderFailureDegradesToRaw(t *testing.T) {
	failing := render.RendererFunc(func(string, map[string]any) (string, error) {
		return "", errors.New("boom")
	})
	s := NewSelector(failing, nil)
	agent := fixtures.FraudDefinition()

	got := s.Select(Request{Agent: agent, FirstVisit: true, GreetOnSwitch: true})
	assert.Equal(t, agent.GreetingTemplate, got)

	malformed := &definition.Definition{Name: "Broken", GreetingTemplate: "Hello {{.name"}
	got = NewSelector(render.NewTextRenderer(), nil).Select(Request{Agent: malformed, FirstVisit: true, GreetOnSwitch: true})
	assert.Equal(t, "Hello {{.name", got)
}

func TestSelect_NilRendererPlaysRaw(t *testing.T) {
	s := NewSelector(nil, nil)
	agent := fixtures.ConciergeDefinition()
	assert.Equal(t, agent.GreetingTemplate, s.Select(Request{Agent: agent, FirstVisit: true, GreetOnSwitch: true}))
}

func TestSessionStart(t *testing.T) {
	s := NewSelector(render.NewTextRenderer(), nil)

	assert.Equal(t, "Billing here.", s.SessionStart(fixtures.BillingDefinition(), nil))
	assert.Equal(t, DefaultGreeting, s.SessionStart(&definition.Definition{Name: "Bare"}, nil))

	custom := NewSelector(nil, nil, WithDefaultGreeting("Welcome to Contoso."))
	assert.Equal(t, "Welcome to Contoso.", custom.SessionStart(&definition.Definition{Name: "Bare"}, nil))

	assert.Equal(t, "Forced.", s.SessionStart(fixtures.BillingDefinition(), map[string]any{OverrideVar: "Forced."}))
}
