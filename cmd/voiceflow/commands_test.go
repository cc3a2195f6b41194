package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conciergeYAML = `
name: Concierge
description: General intake agent
prompt: You are {{.assistant_name}} at {{.institution_name}}.
greeting: Hi, this is {{.assistant_name}}. How can I help?
return_greeting: Back with {{.assistant_name}}.
model:
  deployment_id: gpt-4o
  temperature: 0.6
  top_p: 0.9
  max_tokens: 2048
tools: [lookup_account, go-fraud]
template_vars:
  assistant_name: Ava
  institution_name: Contoso Bank
`

const fraudYAML = `
name: FraudAgent
prompt: You handle suspected fraud.
greeting: Fraud team here, {{default "there" .caller_name}}.
handoff_trigger: go-fraud
model:
  deployment_id: gpt-4o
  temperature: 0.3
  top_p: 0.8
  max_tokens: 1024
tools: [freeze_card]
`

const scenarioYAML = `
name: banking
defaults:
  handoff_type: announced
  share_context: true
edges:
  - from: Concierge
    to: FraudAgent
generic_handoff:
  enabled: true
`

// writeWorkspace lays out an agents directory, a scenario and a config file
// and returns the config path.
func writeWorkspace(t *testing.T, agents map[string]string, scenario string) string {
	t.Helper()
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0o755))
	for file, body := range agents {
		require.NoError(t, os.WriteFile(filepath.Join(agentsDir, file), []byte(body), 0o600))
	}

	var cfg strings.Builder
	cfg.WriteString("agents:\n  dir: " + agentsDir + "\n  start_agent: Concierge\n")
	if scenario != "" {
		path := filepath.Join(dir, "scenario.yaml")
		require.NoError(t, os.WriteFile(path, []byte(scenario), 0o600))
		cfg.WriteString("  scenario_file: " + path + "\n")
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg.String()), 0o600))
	return cfgPath
}

func TestRunValidate_OK(t *testing.T) {
	cfgPath := writeWorkspace(t, map[string]string{
		"concierge.yaml": conciergeYAML,
		"fraud.yml":      fraudYAML,
	}, scenarioYAML)

	var out bytes.Buffer
	require.NoError(t, runValidate([]string{"--config", cfgPath}, &out))

	text := out.String()
	assert.Contains(t, text, "AGENT")
	assert.Contains(t, text, "Concierge")
	assert.Contains(t, text, "go-fraud")
	assert.True(t, strings.HasSuffix(text, "OK\n"))
}

func TestRunValidate_Problems(t *testing.T) {
	tight := strings.Replace(fraudYAML, "max_tokens: 1024", "max_tokens: 2", 1)
	broken := strings.Replace(conciergeYAML, "{{.assistant_name}}. How", "{{.assistant_name. How", 1)
	dangling := strings.Replace(scenarioYAML, "generic_handoff:", "  - from: FraudAgent\n    to: Nobody\ngeneric_handoff:", 1)
	require.NotEqual(t, scenarioYAML, dangling)

	cfgPath := writeWorkspace(t, map[string]string{
		"concierge.yaml": broken,
		"fraud.yaml":     tight,
	}, dangling)

	var out bytes.Buffer
	err := runValidate([]string{"--config", cfgPath}, &out)
	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, err.Error(), "3 problem(s)")

	text := out.String()
	assert.Contains(t, text, "edge FraudAgent->Nobody: unknown target agent")
	assert.Contains(t, text, "greeting template error")
	assert.Contains(t, text, "over budget")
}

func TestRunValidate_DuplicateAgents(t *testing.T) {
	cfgPath := writeWorkspace(t, map[string]string{
		"a.yaml": conciergeYAML,
		"b.yaml": conciergeYAML,
	}, "")

	var out bytes.Buffer
	err := runValidate([]string{"--config", cfgPath}, &out)
	require.ErrorIs(t, err, errValidationFailed)
	assert.Contains(t, out.String(), "agents:")
}

func runSimulation(t *testing.T, args ...string) (simulationReport, error) {
	t.Helper()
	cfgPath := writeWorkspace(t, map[string]string{
		"concierge.yaml": conciergeYAML,
		"fraud.yaml":     fraudYAML,
	}, scenarioYAML)

	var out bytes.Buffer
	err := runSimulate(append([]string{"--config", cfgPath}, args...), &out)
	var report simulationReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report), out.String())
	return report, err
}

func TestRunSimulate(t *testing.T) {
	report, err := runSimulation(t, "--session", "call-1", "--tokens", "go-fraud", "--var", "caller_name=Sam")
	require.NoError(t, err)

	assert.Equal(t, "call-1", report.SessionID)
	assert.Equal(t, "FraudAgent", report.ActiveAgent)
	require.Len(t, report.Steps, 2)

	start := report.Steps[0]
	assert.True(t, start.Success)
	assert.Equal(t, "start:Concierge", start.Input)
	assert.Equal(t, "Hi, this is Ava. How can I help?", start.Greeting)
	assert.Contains(t, start.Tools, "go-fraud")
	require.NotNil(t, start.Model)
	assert.Equal(t, "gpt-4o", start.Model.DeploymentID)

	hop := report.Steps[1]
	assert.True(t, hop.Success)
	assert.Equal(t, "FraudAgent", hop.TargetAgent)
	assert.Equal(t, "Fraud team here, Sam.", hop.Greeting)
	assert.Equal(t, "Concierge", hop.SystemVars["previous_agent"])
}

func TestRunSimulate_GenericAndFailures(t *testing.T) {
	report, err := runSimulation(t, "--tokens", "agent:FraudAgent, go-nowhere")
	require.ErrorIs(t, err, errSimulationFailed)

	require.Len(t, report.Steps, 3)
	assert.True(t, report.Steps[1].Success)
	assert.Equal(t, "FraudAgent", report.Steps[1].TargetAgent)

	assert.False(t, report.Steps[2].Success)
	assert.Equal(t, "UNKNOWN_HANDOFF_TARGET", report.Steps[2].ErrorCode)
	assert.Equal(t, "FraudAgent", report.ActiveAgent, "failed steps leave the active agent")
}

func TestRunSimulate_UnknownStart(t *testing.T) {
	report, err := runSimulation(t, "--start", "Nobody")
	require.ErrorIs(t, err, errSimulationFailed)
	require.Len(t, report.Steps, 1)
	assert.NotEmpty(t, report.Steps[0].ErrorCode)
}

func TestSplitTokens(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitTokens(" a, ,b ,"))
	assert.Nil(t, splitTokens(""))
}
