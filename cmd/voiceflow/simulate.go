package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/persistence"
	"github.com/BaSui01/voiceflow/agent/session"
)

// genericPrefix marks a simulate step that names its target directly.
const genericPrefix = "agent:"

// errSimulationFailed is returned when at least one step failed.
var errSimulationFailed = errors.New("simulation had failed steps")

// simulationStep is one line of simulate output.
type simulationStep struct {
	Step  int    `json:"step"`
	Input string `json:"input"`
	handoff.Resolution
	ErrorCode string                  `json:"error_code,omitempty"`
	Tools     []string                `json:"tools,omitempty"`
	Model     *definition.ModelConfig `json:"model,omitempty"`
}

// simulationReport is the simulate output document.
type simulationReport struct {
	SessionID   string           `json:"session_id"`
	Steps       []simulationStep `json:"steps"`
	ActiveAgent string           `json:"active_agent"`
}

// =============================================================================
// 🎬 simulate 命令
// =============================================================================

// runSimulate starts a session on --start and resolves each --tokens entry
// in order, standing in for the conversation loop. Entries of the form
// "agent:<Name>" go through the generic handoff tool. System variables
// returned by each step feed the next, and the session lives in memory.
func runSimulate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(out)
	start := fs.String("start", "", "Agent to start on (default: agents.start_agent)")
	tokens := fs.String("tokens", "", "Comma-separated handoff tokens")
	sessionID := fs.String("session", "", "Session id (default: random UUID)")
	vars := map[string]any{}
	fs.Func("var", "System variable key=value (repeatable)", func(s string) error {
		k, v, ok := strings.Cut(s, "=")
		if !ok || k == "" {
			return fmt.Errorf("expected key=value, got %q", s)
		}
		vars[k] = v
		return nil
	})
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if *start == "" {
		*start = cfg.Agents.StartAgent
	}
	if *start == "" {
		return errors.New("--start is required when agents.start_agent is unset")
	}
	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}

	ctx := context.Background()
	c, err := newCore(ctx, cfg, zap.NewNop(), coreDeps{store: persistence.NewMemoryStore()})
	if err != nil {
		return err
	}
	defer func() { _ = c.close(ctx) }()

	report := simulationReport{SessionID: *sessionID}
	failed := 0
	err = c.manager.With(ctx, *sessionID, func(reg *session.Registry) error {
		res := c.resolver.Start(ctx, reg, *start, vars)
		report.Steps = append(report.Steps, c.step(reg, 0, "start:"+*start, res, cfg.Agents.Mode))
		if !res.Success {
			failed++
			return nil
		}
		carried := maps.Clone(res.SystemVars)

		for i, token := range splitTokens(*tokens) {
			req := handoff.Request{SystemVars: carried, FirstVisit: true}
			var res handoff.Resolution
			if target, ok := strings.CutPrefix(token, genericPrefix); ok {
				req.TargetAgent = target
				res = c.resolver.ResolveGeneric(ctx, reg, req)
			} else {
				req.Token = token
				res = c.resolver.Resolve(ctx, reg, req)
			}
			report.Steps = append(report.Steps, c.step(reg, i+1, token, res, cfg.Agents.Mode))
			if !res.Success {
				failed++
				continue
			}
			carried = maps.Clone(res.SystemVars)
		}
		report.ActiveAgent = reg.ActiveAgent()
		return nil
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d", errSimulationFailed, failed)
	}
	return nil
}

func (c *core) step(reg *session.Registry, n int, input string, res handoff.Resolution, mode string) simulationStep {
	st := simulationStep{Step: n, Input: input, Resolution: res}
	if !res.Success {
		st.ErrorCode = string(res.ErrorCode())
		return st
	}
	if tools, err := c.resolver.ToolsFor(reg, res.TargetAgent); err == nil {
		st.Tools = tools
	}
	if res.Agent != nil {
		model := res.Agent.Model.ForMode(mode)
		st.Model = &model
	}
	return st
}

func splitTokens(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
