package supervisor

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/BaSui01/voiceflow/agent/definition"
)

// Template variables read by NewRuleAdvisor.
const (
	VarPreferredChannel       = "preferred_channel"
	VarDocumentRequiredIssues = "document_required_issues"
	VarPreserveFields         = "preserve_fields"
	VarWaitThreshold          = "wait_threshold_seconds"
	VarQueueThreshold         = "queue_threshold"
	VarSentimentThreshold     = "sentiment_threshold"
)

// Rule table defaults.
const (
	DefaultWaitThreshold      = 120.0
	DefaultQueueThreshold     = 50
	DefaultSentimentThreshold = 0.3
)

// RuleAdvisor applies the fixed rule table. The first matching rule wins.
type RuleAdvisor struct {
	AgentName              string
	PreferredChannel       string
	DocumentRequiredIssues []string
	PreserveFields         []string
	WaitThreshold          float64
	QueueThreshold         int
	SentimentThreshold     float64
}

// NewRuleAdvisor is the default AdvisorFactory. Thresholds and channel
// preferences come from the definition's template variables.
func NewRuleAdvisor(def *definition.Definition) (Advisor, error) {
	if def == nil {
		return nil, fmt.Errorf("rule advisor: nil definition")
	}
	vars := def.TemplateVariables
	a := &RuleAdvisor{
		AgentName:              def.Name,
		PreferredChannel:       stringVar(vars, VarPreferredChannel),
		DocumentRequiredIssues: stringsVar(vars, VarDocumentRequiredIssues),
		PreserveFields:         stringsVar(vars, VarPreserveFields),
		WaitThreshold:          DefaultWaitThreshold,
		QueueThreshold:         DefaultQueueThreshold,
		SentimentThreshold:     DefaultSentimentThreshold,
	}

	var err error
	if v, ok := vars[VarWaitThreshold]; ok {
		if a.WaitThreshold, err = toFloat(v); err != nil {
			return nil, fmt.Errorf("rule advisor %s: %s: %w", def.Name, VarWaitThreshold, err)
		}
	}
	if v, ok := vars[VarQueueThreshold]; ok {
		f, err := toFloat(v)
		if err != nil {
			return nil, fmt.Errorf("rule advisor %s: %s: %w", def.Name, VarQueueThreshold, err)
		}
		a.QueueThreshold = int(f)
	}
	if v, ok := vars[VarSentimentThreshold]; ok {
		if a.SentimentThreshold, err = toFloat(v); err != nil {
			return nil, fmt.Errorf("rule advisor %s: %s: %w", def.Name, VarSentimentThreshold, err)
		}
	}
	return a, nil
}

// Name implements Advisor.
func (a *RuleAdvisor) Name() string { return a.AgentName }

// Advise implements Advisor.
func (a *RuleAdvisor) Advise(ctx context.Context, c Context) (Advice, error) {
	if err := ctx.Err(); err != nil {
		return Advice{}, err
	}
	out := Advice{
		Agent:                   a.AgentName,
		ContextFieldsToPreserve: slices.Clone(a.PreserveFields),
	}

	switch {
	case c.WaitSeconds > a.WaitThreshold || c.QueueDepth > a.QueueThreshold:
		out.Action = ActionSuggestSwitch
		out.Urgency = UrgencyHigh
		out.RecommendedChannel = a.PreferredChannel
		out.Reason = fmt.Sprintf("estimated wait %.0fs, queue depth %d", c.WaitSeconds, c.QueueDepth)
	case c.IssueType != "" && slices.Contains(a.DocumentRequiredIssues, c.IssueType):
		out.Action = ActionSuggestSwitch
		out.Urgency = UrgencyMedium
		out.RecommendedChannel = a.PreferredChannel
		out.Reason = fmt.Sprintf("issue %q requires documents", c.IssueType)
	case c.Sentiment != nil && *c.Sentiment < a.SentimentThreshold:
		out.Action = ActionEscalate
		out.Urgency = UrgencyHigh
		out.Reason = fmt.Sprintf("sentiment %.2f below %.2f", *c.Sentiment, a.SentimentThreshold)
	default:
		out.Action = ActionContinue
		out.Urgency = UrgencyLow
	}
	return out, nil
}

func stringVar(vars map[string]any, key string) string {
	if s, ok := vars[key].(string); ok {
		return s
	}
	return ""
}

// stringsVar accepts a YAML list or a single string.
func stringsVar(vars map[string]any, key string) []string {
	switch v := vars[key].(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
