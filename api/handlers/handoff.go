package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/types"
)

// =============================================================================
// 🔀 交接 Handler
// =============================================================================

// HandoffHandler starts sessions and resolves handoffs on behalf of a
// conversation loop.
type HandoffHandler struct {
	manager  *session.Manager
	resolver *handoff.Resolver
	logger   *zap.Logger
}

// NewHandoffHandler 创建交接处理器
func NewHandoffHandler(manager *session.Manager, resolver *handoff.Resolver, logger *zap.Logger) *HandoffHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HandoffHandler{
		manager:  manager,
		resolver: resolver,
		logger:   logger.With(zap.String("handler", "handoff")),
	}
}

// HandleStart 处理 POST /api/v1/sessions/{id}/start
func (h *HandoffHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req api.StartRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Agent == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "agent is required", h.logger)
		return
	}

	h.run(w, r, func(reg *session.Registry) handoff.Resolution {
		return h.resolver.Start(r.Context(), reg, req.Agent, req.SystemVars)
	})
}

// HandleHandoff 处理 POST /api/v1/sessions/{id}/handoff。
// 带 token 时按交接映射解析，只带 target_agent 时走通用交接。
func (h *HandoffHandler) HandleHandoff(w http.ResponseWriter, r *http.Request) {
	var req api.HandoffRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	switch {
	case req.Token == "" && req.TargetAgent == "":
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "token or target_agent is required", h.logger)
		return
	case req.Token != "" && req.TargetAgent != "":
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "token and target_agent are exclusive", h.logger)
		return
	}

	hreq := req.ToResolverRequest()
	h.run(w, r, func(reg *session.Registry) handoff.Resolution {
		if hreq.Token != "" {
			return h.resolver.Resolve(r.Context(), reg, hreq)
		}
		return h.resolver.ResolveGeneric(r.Context(), reg, hreq)
	})
}

// run resolves under the session lock. A failed resolution is written as
// an error response that still carries the resolution body.
func (h *HandoffHandler) run(w http.ResponseWriter, r *http.Request, resolve func(*session.Registry) handoff.Resolution) {
	var out api.HandoffResponse
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		out.Resolution = resolve(reg)
		if !out.Success {
			return nil
		}
		tools, err := h.resolver.ToolsFor(reg, out.TargetAgent)
		if err != nil {
			return err
		}
		out.Tools = tools
		return nil
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if !out.Success {
		writeErrorWithData(w, r, out.Err, out, h.logger)
		return
	}
	WriteSuccess(w, r, out)
}
