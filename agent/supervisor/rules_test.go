package supervisor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/testutil/fixtures"
)

func ptr(f float64) *float64 { return &f }

func TestRuleAdvisor_RuleTable(t *testing.T) {
	advisor, err := NewRuleAdvisor(fixtures.AdvisorDefinition())
	require.NoError(t, err)

	tests := []struct {
		name    string
		ctx     Context
		action  Action
		urgency Urgency
		channel string
	}{
		{"long wait", Context{WaitSeconds: 121}, ActionSuggestSwitch, UrgencyHigh, "sms"},
		{"deep queue", Context{QueueDepth: 51}, ActionSuggestSwitch, UrgencyHigh, "sms"},
		{"thresholds are exclusive", Context{WaitSeconds: 120, QueueDepth: 50}, ActionContinue, UrgencyLow, ""},
		{"document issue", Context{IssueType: "dispute"}, ActionSuggestSwitch, UrgencyMedium, "sms"},
		{"unlisted issue", Context{IssueType: "balance"}, ActionContinue, UrgencyLow, ""},
		{"low sentiment", Context{Sentiment: ptr(0.2)}, ActionEscalate, UrgencyHigh, ""},
		{"sentiment at threshold", Context{Sentiment: ptr(0.3)}, ActionContinue, UrgencyLow, ""},
		{"unscored sentiment", Context{}, ActionContinue, UrgencyLow, ""},
		{"wait rule wins over sentiment", Context{WaitSeconds: 300, Sentiment: ptr(0.1)}, ActionSuggestSwitch, UrgencyHigh, "sms"},
		{"document rule wins over sentiment", Context{IssueType: "identity_verification", Sentiment: ptr(0.1)}, ActionSuggestSwitch, UrgencyMedium, "sms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advice, err := advisor.Advise(context.Background(), tt.ctx)
			require.NoError(t, err)
			assert.Equal(t, fixtures.Supervisor, advice.Agent)
			assert.Equal(t, tt.action, advice.Action)
			assert.Equal(t, tt.urgency, advice.Urgency)
			assert.Equal(t, tt.channel, advice.RecommendedChannel)
			assert.Equal(t, []string{"caller_name", "account_id"}, advice.ContextFieldsToPreserve)
		})
	}
}

func TestRuleAdvisor_CancelledContext(t *testing.T) {
	advisor, err := NewRuleAdvisor(fixtures.AdvisorDefinition())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = advisor.Advise(ctx, Context{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRuleAdvisor_Thresholds(t *testing.T) {
	def := &definition.Definition{
		Name: "QueueWatcher",
		TemplateVariables: map[string]any{
			VarWaitThreshold:          "30",
			VarQueueThreshold:         10,
			VarSentimentThreshold:     0.5,
			VarDocumentRequiredIssues: "kyc",
		},
	}
	a, err := NewRuleAdvisor(def)
	require.NoError(t, err)
	ra := a.(*RuleAdvisor)
	assert.Equal(t, 30.0, ra.WaitThreshold)
	assert.Equal(t, 10, ra.QueueThreshold)
	assert.Equal(t, 0.5, ra.SentimentThreshold)
	assert.Equal(t, []string{"kyc"}, ra.DocumentRequiredIssues)
	assert.Empty(t, ra.PreserveFields)

	def.TemplateVariables[VarQueueThreshold] = []any{"nope"}
	_, err = NewRuleAdvisor(def)
	assert.Error(t, err)

	_, err = NewRuleAdvisor(nil)
	assert.Error(t, err)
}
