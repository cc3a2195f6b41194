package session

import (
	"fmt"
	"maps"
	"slices"

	"github.com/BaSui01/voiceflow/agent/definition"
)

// OverrideKind selects which field an Override writes.
type OverrideKind string

const (
	KindPrompt       OverrideKind = "prompt"
	KindVoice        OverrideKind = "voice"
	KindModel        OverrideKind = "model"
	KindTools        OverrideKind = "tools"
	KindGreeting     OverrideKind = "greeting"
	KindTemplateVars OverrideKind = "template_vars"
)

// Override is one field write. Only the field matching Kind is read.
type Override struct {
	Kind         OverrideKind
	Prompt       string
	Voice        definition.VoiceConfig
	Model        definition.ModelConfig
	Tools        []string
	Greeting     string
	TemplateVars map[string]any
}

// validate checks the payload for Kind against agent name.
func (o Override) validate(name string) error {
	switch o.Kind {
	case KindPrompt, KindVoice, KindGreeting:
		return nil
	case KindModel:
		probe := definition.Definition{Name: name, Model: o.Model}
		if err := probe.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
		}
		return nil
	case KindTools:
		probe := definition.Definition{Name: name, ToolNames: o.Tools}
		if err := probe.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOverride, err)
		}
		return nil
	case KindTemplateVars:
		if len(o.TemplateVars) == 0 {
			return fmt.Errorf("%w: template_vars is empty", ErrInvalidOverride)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown override kind %q", ErrInvalidOverride, o.Kind)
	}
}

// writeTo sets the field selected by Kind on rec.
func (o Override) writeTo(rec *OverrideRecord) {
	switch o.Kind {
	case KindPrompt:
		p := o.Prompt
		rec.Prompt = &p
	case KindVoice:
		v := o.Voice
		rec.Voice = &v
	case KindModel:
		m := o.Model.Clone()
		rec.Model = &m
	case KindTools:
		rec.Tools = slices.Clone(o.Tools)
		if rec.Tools == nil {
			rec.Tools = []string{}
		}
		rec.ToolsSet = true
	case KindGreeting:
		g := o.Greeting
		rec.Greeting = &g
	case KindTemplateVars:
		if rec.TemplateVars == nil {
			rec.TemplateVars = make(map[string]any, len(o.TemplateVars))
		}
		maps.Copy(rec.TemplateVars, o.TemplateVars)
	}
}
