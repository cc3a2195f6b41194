package handoff

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bankingScenario = `
name: banking
defaults:
  handoff_type: announced
  share_context: false
edges:
  - from: Concierge
    to: FraudAgent
    share_context: true
  - from: "*"
    to: Concierge
    type: discrete
  - from: FraudAgent
    to: Concierge
generic_handoff:
  enabled: true
`

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario([]byte(bankingScenario))
	require.NoError(t, err)
	assert.Equal(t, "banking", s.Name)
	assert.Equal(t, DefaultGenericToolName, s.GenericHandoff.ToolName)

	tests := []struct {
		name           string
		source, target string
		want           Config
	}{
		{"edge overrides share", "Concierge", "FraudAgent", Config{Type: TypeAnnounced, ShareContext: true}},
		{"exact edge beats wildcard", "FraudAgent", "Concierge", Config{Type: TypeAnnounced}},
		{"wildcard edge", "BillingAgent", "Concierge", Config{Type: TypeDiscrete}},
		{"defaults without edge", "Concierge", "BillingAgent", Config{Type: TypeAnnounced}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.HandoffConfig(tt.source, tt.target))
		})
	}
}

func TestParseScenario_Defaults(t *testing.T) {
	s, err := ParseScenario([]byte("name: empty\n"))
	require.NoError(t, err)
	assert.Equal(t, Config{Type: TypeAnnounced, ShareContext: true}, s.HandoffConfig("A", "B"))

	_, ok := s.GenericHandoffTool("A")
	assert.False(t, ok)
	assert.False(t, s.AllowsHandoff("A", "B"))
}

func TestParseScenario_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":       "edges: [",
		"bad default":    "defaults: {handoff_type: loud}",
		"bad edge type":  "edges: [{from: A, to: B, type: loud}]",
		"missing target": "edges: [{from: A}]",
		"duplicate edge": "edges: [{from: A, to: B}, {from: A, to: B}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseScenario([]byte(doc))
			assert.ErrorIs(t, err, ErrInvalidScenario)
		})
	}
}

func TestScenario_GenericHandoff(t *testing.T) {
	s, err := ParseScenario([]byte(bankingScenario))
	require.NoError(t, err)

	assert.Equal(t, []string{"FraudAgent"}, s.Targets("Concierge"))
	assert.Equal(t, []string{"Concierge"}, s.Targets("BillingAgent"))

	tool, ok := s.GenericHandoffTool("BillingAgent")
	assert.True(t, ok)
	assert.Equal(t, DefaultGenericToolName, tool)

	assert.True(t, s.AllowsHandoff("Concierge", "FraudAgent"))
	assert.True(t, s.AllowsHandoff("BillingAgent", "Concierge"))
	assert.False(t, s.AllowsHandoff("Concierge", "Concierge"))
	assert.False(t, s.AllowsHandoff("BillingAgent", "FraudAgent"))
}

func TestScenario_Check(t *testing.T) {
	s, err := ParseScenario([]byte(bankingScenario))
	require.NoError(t, err)

	known := map[string]bool{"Concierge": true, "FraudAgent": true}
	assert.Empty(t, s.Check(func(n string) bool { return known[n] }))

	delete(known, "FraudAgent")
	errs := s.Check(func(n string) bool { return known[n] })
	require.Len(t, errs, 2)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrInvalidScenario)
	}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(bankingScenario), 0o600))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Len(t, s.Edges, 3)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestStaticScenario(t *testing.T) {
	s := DefaultScenario()
	assert.Equal(t, Config{Type: TypeAnnounced, ShareContext: true}, s.HandoffConfig("A", "B"))
	_, ok := s.GenericHandoffTool("A")
	assert.False(t, ok)
	assert.False(t, s.AllowsHandoff("A", "B"))
}
