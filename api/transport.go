package api

import (
	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/supervisor"
)

// =============================================================================
// Transport control channel
// =============================================================================

// FrameType names a transport frame.
type FrameType string

// Client frames.
const (
	FrameStart    FrameType = "start"
	FrameHandoff  FrameType = "handoff"
	FrameAdvise   FrameType = "advise"
	FrameOverride FrameType = "override"
)

// Server frames.
const (
	FrameResolution  FrameType = "resolution"
	FrameAgentUpdate FrameType = "agent_update"
	FrameAdvice      FrameType = "advice"
	FrameAck         FrameType = "ack"
	FrameError       FrameType = "error"
)

// Frame is one JSON message on GET /api/v1/sessions/{id}/transport. The
// payload field matching Type is set. Server frames echo the ID of the
// client frame they answer.
type Frame struct {
	ID   string    `json:"id,omitempty"`
	Type FrameType `json:"type"`

	Start    *StartRequest      `json:"start,omitempty"`
	Handoff  *HandoffRequest    `json:"handoff,omitempty"`
	Advise   *AdvisoryRequest   `json:"advise,omitempty"`
	Override *TransportOverride `json:"override,omitempty"`

	Resolution *HandoffResponse           `json:"resolution,omitempty"`
	Agent      *AgentUpdate               `json:"agent,omitempty"`
	Advice     *supervisor.Recommendation `json:"advice,omitempty"`
	Error      *ErrorPayload              `json:"error,omitempty"`
}

// TransportOverride applies a patch to one agent with source "transport".
type TransportOverride struct {
	Agent string        `json:"agent"`
	Patch OverridePatch `json:"patch"`
}

// AgentUpdate carries what the realtime transport needs to reconfigure its
// model session for the active agent.
type AgentUpdate struct {
	Agent        string                 `json:"agent"`
	Instructions string                 `json:"instructions"`
	Voice        definition.VoiceConfig `json:"voice"`
	Model        definition.ModelConfig `json:"model"`
	Tools        []string               `json:"tools,omitempty"`
	Session      map[string]any         `json:"session,omitempty"`
}

// ErrorPayload reports a failed client frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
