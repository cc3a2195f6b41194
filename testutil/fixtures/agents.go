// =============================================================================
// 📦 测试数据工厂 - Agent 定义
// =============================================================================
// 提供一组语音客服场景的 Agent 定义，用于各包测试
// =============================================================================
package fixtures

import (
	"github.com/BaSui01/voiceflow/agent/definition"
)

// Agent names used across tests.
const (
	Concierge  = "Concierge"
	FraudAgent = "FraudAgent"
	Billing    = "BillingAgent"
	Supervisor = "ChannelAdvisor"
)

// ConciergeDefinition 返回前台接待 Agent
func ConciergeDefinition() *definition.Definition {
	return &definition.Definition{
		Name:                   Concierge,
		Description:            "General intake agent",
		PromptTemplate:         "You are {{.assistant_name}}, helping {{default \"the caller\" .caller_name}} at {{.institution_name}}.",
		GreetingTemplate:       "Hi, this is {{.assistant_name}} from {{.institution_name}}. How can I help?",
		ReturnGreetingTemplate: "Back with {{.assistant_name}}. Anything else?",
		HandoffTrigger:         "go-concierge",
		Voice:                  definition.VoiceConfig{Name: "en-US-AvaNeural", Style: "friendly", Rate: "+0%"},
		Model:                  definition.ModelConfig{DeploymentID: "gpt-4o", Temperature: 0.6, TopP: 0.9, MaxTokens: 2048},
		ToolNames:              []string{"lookup_account", "go-fraud", "go-billing"},
		TemplateVariables: map[string]any{
			"assistant_name":   "Ava",
			"institution_name": "Contoso Bank",
		},
		SessionSettings: map[string]any{"modalities": []any{"audio", "text"}},
	}
}

// FraudDefinition 返回反欺诈专员 Agent
func FraudDefinition() *definition.Definition {
	return &definition.Definition{
		Name:                   FraudAgent,
		Description:            "Fraud specialist",
		PromptTemplate:         "You handle suspected fraud for {{.institution_name}}.",
		GreetingTemplate:       "You're through to the fraud team, {{default \"there\" .caller_name}}.",
		ReturnGreetingTemplate: "Fraud team again.",
		HandoffTrigger:         "go-fraud",
		Voice:                  definition.VoiceConfig{Name: "en-US-GuyNeural", Style: "calm"},
		Model:                  definition.ModelConfig{DeploymentID: "gpt-4o", Temperature: 0.3, TopP: 0.8, MaxTokens: 1024},
		ToolNames:              []string{"freeze_card", "go-concierge"},
		TemplateVariables:      map[string]any{"institution_name": "Contoso Bank"},
	}
}

// BillingDefinition 返回账单 Agent（没有返回问候模板）
func BillingDefinition() *definition.Definition {
	return &definition.Definition{
		Name:             Billing,
		Description:      "Billing questions",
		PromptTemplate:   "You answer billing questions.",
		GreetingTemplate: "Billing here.",
		HandoffTrigger:   "go-billing",
		Model:            definition.ModelConfig{DeploymentID: "gpt-4o-mini", Temperature: 0.5, TopP: 1, MaxTokens: 512},
		ToolNames:        []string{"get_invoice", "go-concierge"},
	}
}

// AdvisorDefinition 返回渠道顾问 Agent（不参与 handoff）
func AdvisorDefinition() *definition.Definition {
	return &definition.Definition{
		Name:           Supervisor,
		Description:    "Recommends channel switches",
		PromptTemplate: "Advise on the best channel.",
		TemplateVariables: map[string]any{
			"preferred_channel":        "sms",
			"document_required_issues": []any{"identity_verification", "dispute"},
			"preserve_fields":          []any{"caller_name", "account_id"},
		},
	}
}

// Definitions 返回全部测试 Agent（加载顺序固定）
func Definitions() []*definition.Definition {
	return []*definition.Definition{
		ConciergeDefinition(),
		FraudDefinition(),
		BillingDefinition(),
		AdvisorDefinition(),
	}
}

// Registry 返回包含全部测试 Agent 的注册表
func Registry() *definition.Registry {
	return definition.MustNewRegistry(Definitions()...)
}
