package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/api"
)

// =============================================================================
// 🤖 Agent 目录 Handler
// =============================================================================

// AgentHandler serves the read-only base agent catalogue.
type AgentHandler struct {
	base   *definition.Registry
	logger *zap.Logger
}

// NewAgentHandler 创建 Agent 目录处理器
func NewAgentHandler(base *definition.Registry, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{base: base, logger: logger.With(zap.String("handler", "agents"))}
}

// HandleList 处理 GET /api/v1/agents
func (h *AgentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	names := h.base.List()
	out := make([]api.AgentSummary, 0, len(names))
	for _, name := range names {
		def, _ := h.base.Get(name)
		out = append(out, api.NewAgentSummary(def))
	}
	WriteSuccess(w, r, out)
}

// HandleGet 处理 GET /api/v1/agents/{name}
func (h *AgentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	def, ok := h.base.Get(name)
	if !ok {
		WriteError(w, r, fmt.Errorf("%w: %s", session.ErrUnknownAgent, name), h.logger)
		return
	}
	WriteSuccess(w, r, def)
}
