package supervisor

import (
	"context"
	"slices"

	"github.com/BaSui01/voiceflow/agent/definition"
)

// Action is what an advisor recommends the conversation loop do.
type Action string

const (
	ActionContinue      Action = "continue"
	ActionSuggestSwitch Action = "suggest_switch"
	ActionEscalate      Action = "escalate"
)

// Urgency orders advice. The zero value ranks below low.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Rank returns the ordinal of u; unknown values rank 0.
func (u Urgency) Rank() int {
	switch u {
	case UrgencyLow:
		return 1
	case UrgencyMedium:
		return 2
	case UrgencyHigh:
		return 3
	case UrgencyUrgent:
		return 4
	default:
		return 0
	}
}

// Advice is one advisor's recommendation.
type Advice struct {
	Agent                   string   `json:"agent"`
	Action                  Action   `json:"action"`
	Urgency                 Urgency  `json:"urgency"`
	Reason                  string   `json:"reason,omitempty"`
	RecommendedChannel      string   `json:"recommended_channel,omitempty"`
	ContextFieldsToPreserve []string `json:"context_fields_to_preserve,omitempty"`
}

// Context is the turn state advisors evaluate.
type Context struct {
	WaitSeconds float64 `json:"wait_seconds"`
	QueueDepth  int     `json:"queue_depth"`
	IssueType   string  `json:"issue_type,omitempty"`
	// Sentiment in [0,1]; nil when unscored.
	Sentiment *float64       `json:"sentiment,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Vars      map[string]any `json:"vars,omitempty"`
}

// Advisor evaluates one turn.
type Advisor interface {
	Name() string
	Advise(ctx context.Context, c Context) (Advice, error)
}

// AdvisorFactory builds an advisor from its effective definition.
type AdvisorFactory func(def *definition.Definition) (Advisor, error)

// Synthesize returns the most urgent advice, ties broken by position.
// ok is false for an empty list.
func Synthesize(advice []Advice) (best Advice, ok bool) {
	for i, a := range advice {
		if i == 0 || a.Urgency.Rank() > best.Urgency.Rank() {
			best = a
			ok = true
		}
	}
	return best, ok
}

// ContextForHandoff returns the union of every advisor's preserve fields
// in first-seen order.
func ContextForHandoff(advice []Advice) []string {
	var fields []string
	for _, a := range advice {
		for _, f := range a.ContextFieldsToPreserve {
			if f != "" && !slices.Contains(fields, f) {
				fields = append(fields, f)
			}
		}
	}
	return fields
}
