package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/render"
	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/tokenizer"
)

// errValidationFailed is returned when validate reports problems.
var errValidationFailed = errors.New("validation failed")

// =============================================================================
// ✅ validate 命令
// =============================================================================

// runValidate loads the agent definitions and scenario named by the config
// and reports duplicates, dangling scenario edges, template errors and
// prompts over their model's max_tokens.
func runValidate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(out)
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	problems, err := validateAgents(context.Background(), cfg, out)
	if err != nil {
		return err
	}
	if problems > 0 {
		return fmt.Errorf("%w: %d problem(s)", errValidationFailed, problems)
	}
	fmt.Fprintln(out, "OK")
	return nil
}

func validateAgents(ctx context.Context, cfg *config.Config, out io.Writer) (int, error) {
	defs, err := definition.NewYAMLLoader(cfg.Agents.Dir).LoadAgentDefinitions(ctx)
	if err != nil {
		return 0, err
	}
	problems := 0
	reg, err := definition.NewRegistry(defs)
	if err != nil {
		fmt.Fprintf(out, "agents: %v\n", err)
		return 1, nil
	}

	// Trigger collisions are legal but worth surfacing.
	owners := make(map[string]string)
	for _, def := range defs {
		if def.HandoffTrigger == "" {
			continue
		}
		if prev, ok := owners[def.HandoffTrigger]; ok {
			fmt.Fprintf(out, "warning: trigger %q is declared by %s and %s; %s wins\n",
				def.HandoffTrigger, prev, def.Name, def.Name)
		}
		owners[def.HandoffTrigger] = def.Name
	}

	if cfg.Agents.ScenarioFile != "" {
		scenario, err := handoff.LoadScenario(cfg.Agents.ScenarioFile)
		if err != nil {
			fmt.Fprintf(out, "scenario: %v\n", err)
			problems++
		} else {
			for _, e := range scenario.Check(reg.Has) {
				fmt.Fprintf(out, "scenario: %v\n", e)
				problems++
			}
		}
	}

	renderer := render.NewTextRenderer()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tTRIGGER\tDEPLOYMENT\tTOKENS\tMAX_TOKENS\tSTATUS")
	for _, name := range reg.List() {
		def, _ := reg.Get(name)
		model := def.Model.ForMode(cfg.Agents.Mode)
		status := "ok"

		prompt, rerr := def.RenderPrompt(renderer, nil)
		if rerr != nil {
			status = "prompt template error: " + rerr.Error()
			problems++
		}
		for _, tmpl := range []string{def.GreetingTemplate, def.ReturnGreetingTemplate} {
			if _, gerr := renderer.Render(tmpl, def.TemplateVariables); gerr != nil {
				status = "greeting template error: " + gerr.Error()
				problems++
				break
			}
		}
		tokens, berr := tokenizer.CheckBudget(tokenizer.ForDeployment(model.DeploymentID), prompt, model.MaxTokens)
		var budget *tokenizer.BudgetError
		switch {
		case errors.As(berr, &budget):
			status = "over budget"
			problems++
		case berr != nil:
			status = "count failed: " + berr.Error()
			problems++
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			def.Name, orDash(def.HandoffTrigger), orDash(model.DeploymentID), tokens, model.MaxTokens, status)
	}
	if err := w.Flush(); err != nil {
		return problems, err
	}
	return problems, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
