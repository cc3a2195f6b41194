package definition

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/BaSui01/voiceflow/agent/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

func testDef(name, trigger string) *Definition {
	return &Definition{
		Name:           name,
		PromptTemplate: "You are " + name,
		HandoffTrigger: trigger,
		Model:          ModelConfig{DeploymentID: "gpt-4o", Temperature: 0.7, TopP: 0.9, MaxTokens: 4096},
		ToolNames:      []string{"lookup"},
	}
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry([]*Definition{testDef("Concierge", ""), testDef("FraudAgent", "go-fraud")})
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []string{"Concierge", "FraudAgent"}, reg.List())

	d, ok := reg.Get("FraudAgent")
	require.True(t, ok)
	assert.Equal(t, "go-fraud", d.HandoffTrigger)

	_, ok = reg.Get("Nobody")
	assert.False(t, ok)
}

func TestNewRegistry_DuplicateIsFatal(t *testing.T) {
	_, err := NewRegistry([]*Definition{testDef("Concierge", ""), testDef("Concierge", "")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateAgent)

	assert.Panics(t, func() { MustNewRegistry(testDef("A", ""), testDef("A", "")) })
}

func TestNewRegistry_Invalid(t *testing.T) {
	bad := testDef("Broken", "")
	bad.ToolNames = []string{"a", "a"}
	_, err := NewRegistry([]*Definition{bad})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	hot := testDef("Hot", "")
	hot.Model.Temperature = 3
	_, err = NewRegistry([]*Definition{hot})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewRegistry([]*Definition{{}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestRegistry_IsolatedFromInput(t *testing.T) {
	in := testDef("Concierge", "")
	reg := MustNewRegistry(in)

	in.PromptTemplate = "mutated"
	in.ToolNames[0] = "mutated"

	d, _ := reg.Get("Concierge")
	assert.Equal(t, "You are Concierge", d.PromptTemplate)
	assert.Equal(t, []string{"lookup"}, d.ToolNames)
}

func TestRegistry_HandoffTriggers(t *testing.T) {
	reg := MustNewRegistry(
		testDef("Concierge", ""),
		testDef("FraudAgent", "go-fraud"),
		testDef("FraudAgentV2", "go-fraud"),
		testDef("AuthAgent", "go-auth"),
	)

	triggers := reg.HandoffTriggers(zap.NewNop())
	assert.Equal(t, map[string]string{
		"go-fraud": "FraudAgentV2",
		"go-auth":  "AuthAgent",
	}, triggers)
}

// Property: N agents with unique triggers produce exactly N handoff entries.
func TestProperty_UniqueTriggersYieldOneEntryEach(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(rt, "n")
		defs := make([]*Definition, 0, n)
		for i := 0; i < n; i++ {
			name := "agent-" + string(rune('a'+i))
			defs = append(defs, testDef(name, "go-"+name))
		}
		reg, err := NewRegistry(defs)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if got := len(reg.HandoffTriggers(nil)); got != n {
			rt.Fatalf("expected %d triggers, got %d", n, got)
		}
	})
}

func TestDefinition_CloneIsDeep(t *testing.T) {
	d := testDef("Concierge", "")
	d.TemplateVariables = map[string]any{"bank": "Contoso"}
	d.SessionSettings = map[string]any{"modalities": []any{"audio", "text"}, "turn_detection": map[string]any{"threshold": 0.5}}
	d.Model.Variants = map[string]ModelConfig{"realtime": {DeploymentID: "gpt-4o-realtime"}}

	c := d.Clone()
	c.TemplateVariables["bank"] = "Fabrikam"
	c.SessionSettings["turn_detection"].(map[string]any)["threshold"] = 0.9
	c.Model.Variants["realtime"] = ModelConfig{DeploymentID: "other"}

	assert.Equal(t, "Contoso", d.TemplateVariables["bank"])
	assert.Equal(t, 0.5, d.SessionSettings["turn_detection"].(map[string]any)["threshold"])
	assert.Equal(t, "gpt-4o-realtime", d.Model.Variants["realtime"].DeploymentID)
}

func TestModelConfig_ForMode(t *testing.T) {
	m := ModelConfig{
		DeploymentID: "gpt-4o",
		Variants:     map[string]ModelConfig{"realtime": {DeploymentID: "gpt-4o-realtime", Temperature: 0.6}},
	}

	assert.Equal(t, "gpt-4o-realtime", m.ForMode("realtime").DeploymentID)
	assert.Equal(t, "gpt-4o", m.ForMode("cascade").DeploymentID)
	assert.Nil(t, m.ForMode("realtime").Variants)
	assert.Nil(t, m.ForMode("").Variants)
}

func TestDefinition_RenderPrompt(t *testing.T) {
	d := testDef("Concierge", "")
	d.PromptTemplate = `Welcome to {{ .bank }}, {{ .caller_name | default "caller" }}.`
	d.TemplateVariables = map[string]any{"bank": "Contoso", "caller_name": "Sam"}

	out, err := d.RenderPrompt(render.NewTextRenderer(), map[string]any{"caller_name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Welcome to Contoso, Ada.", out)

	d.PromptTemplate = "broken {{ .bank "
	out, err = d.RenderPrompt(render.NewTextRenderer(), nil)
	assert.Error(t, err)
	assert.Equal(t, "broken {{ .bank ", out)
}

func TestYAMLLoader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "concierge.yaml"), `
name: Concierge
description: Front desk
prompt: "You are the concierge for {{ .bank }}."
greeting: "Hi, this is {{ .bank }}."
return_greeting: "Welcome back to {{ .bank }}."
voice:
  name: en-US-AvaNeural
  style: chat
  rate: "+5%"
model:
  deployment_id: gpt-4o
  temperature: 0.7
  top_p: 0.9
  max_tokens: 2048
  variants:
    realtime:
      deployment_id: gpt-4o-realtime
tools: [verify_identity, handoff_fraud]
template_vars:
  bank: Contoso
session:
  modalities: [audio, text]
`)
	writeFile(t, filepath.Join(dir, "nested", "fraud.yml"), `
name: FraudAgent
handoff_trigger: go-fraud
prompt: "You handle fraud."
model:
  deployment_id: gpt-4o
`)
	writeFile(t, filepath.Join(dir, "README.md"), "ignored")

	reg, err := Load(context.Background(), NewYAMLLoader(dir), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"Concierge", "FraudAgent"}, reg.List())

	c, _ := reg.Get("Concierge")
	assert.Equal(t, "en-US-AvaNeural", c.Voice.Name)
	assert.Equal(t, "+5%", c.Voice.Rate)
	assert.Equal(t, 2048, c.Model.MaxTokens)
	assert.Equal(t, "gpt-4o-realtime", c.Model.ForMode("realtime").DeploymentID)
	assert.Equal(t, []string{"verify_identity", "handoff_fraud"}, c.ToolNames)
	assert.Equal(t, "Contoso", c.TemplateVariables["bank"])
	assert.Equal(t, []any{"audio", "text"}, c.SessionSettings["modalities"])
}

func TestYAMLLoader_Duplicate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "name: Concierge\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "name: Concierge\n")

	_, err := Load(context.Background(), NewYAMLLoader(dir), nil)
	assert.ErrorIs(t, err, ErrDuplicateAgent)
}

func TestYAMLLoader_Errors(t *testing.T) {
	_, err := NewYAMLLoader(filepath.Join(t.TempDir(), "missing")).LoadAgentDefinitions(context.Background())
	assert.Error(t, err)

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.yaml"), "name: [unterminated\n")
	_, err = NewYAMLLoader(dir).LoadAgentDefinitions(context.Background())
	assert.Error(t, err)
}

func TestStaticLoader(t *testing.T) {
	src := testDef("Concierge", "")
	defs, err := StaticLoader{src}.LoadAgentDefinitions(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 1)

	defs[0].Name = "changed"
	assert.Equal(t, "Concierge", src.Name)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
