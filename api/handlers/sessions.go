package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/definition"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/internal/ctxkeys"
	"github.com/BaSui01/voiceflow/types"
)

// =============================================================================
// 🗂️ 会话 Handler
// =============================================================================

// SessionHandler serves per-session overrides, custom agents and
// checkpoints. Every call goes through session.Manager.With.
type SessionHandler struct {
	manager   *session.Manager
	adminRole string
	logger    *zap.Logger
}

// SessionOption configures a SessionHandler.
type SessionOption func(*SessionHandler)

// WithAdminRole requires role for writes with source "admin".
func WithAdminRole(role string) SessionOption {
	return func(h *SessionHandler) { h.adminRole = role }
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(manager *session.Manager, logger *zap.Logger, opts ...SessionOption) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SessionHandler{manager: manager, logger: logger.With(zap.String("handler", "sessions"))}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleCreate 处理 POST /api/v1/sessions，以随机 ID 创建会话
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var out api.SessionSummary
	err := h.manager.With(r.Context(), uuid.NewString(), func(reg *session.Registry) error {
		out = api.NewSessionSummary(reg)
		return nil
	})
	h.respond(w, r, http.StatusCreated, out, err)
}

// HandleGet 处理 GET /api/v1/sessions/{id}
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	var out api.SessionSummary
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		out = api.NewSessionSummary(reg)
		return nil
	})
	h.respond(w, r, http.StatusOK, out, err)
}

// HandleGetAgent 处理 GET /api/v1/sessions/{id}/agents/{name}
func (h *SessionHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	var out api.EffectiveAgent
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		return h.effective(reg, r.PathValue("name"), &out)
	})
	h.respond(w, r, http.StatusOK, out, err)
}

// HandlePatchAgent 处理 PATCH /api/v1/sessions/{id}/agents/{name}
func (h *SessionHandler) HandlePatchAgent(w http.ResponseWriter, r *http.Request) {
	var patch api.OverridePatch
	if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
		return
	}
	if patch.Source == "" {
		patch.Source = session.SourceAPI
	}
	if patch.Source != session.SourceAPI && patch.Source != session.SourceAdmin {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "source must be api or admin", h.logger)
		return
	}
	if patch.Source == session.SourceAdmin && !h.isAdmin(r) {
		WriteErrorMessage(w, r, http.StatusForbidden, types.ErrUnauthorized, "admin role required", h.logger)
		return
	}
	overrides := patch.Overrides()
	if len(overrides) == 0 {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "no override fields set", h.logger)
		return
	}

	name := r.PathValue("name")
	var out api.EffectiveAgent
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		for _, o := range overrides {
			if err := reg.ApplyOverride(name, o, patch.Source); err != nil {
				return err
			}
		}
		return h.effective(reg, name, &out)
	})
	h.respond(w, r, http.StatusOK, out, err)
}

// HandleResetAgent 处理 DELETE /api/v1/sessions/{id}/agents/{name}/overrides
func (h *SessionHandler) HandleResetAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var out api.EffectiveAgent
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		if err := reg.Reset(name); err != nil {
			return err
		}
		return h.effective(reg, name, &out)
	})
	h.respond(w, r, http.StatusOK, out, err)
}

// HandleResetAll 处理 DELETE /api/v1/sessions/{id}/overrides
func (h *SessionHandler) HandleResetAll(w http.ResponseWriter, r *http.Request) {
	var out api.SessionSummary
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		reg.ResetAll()
		out = api.NewSessionSummary(reg)
		return nil
	})
	h.respond(w, r, http.StatusOK, out, err)
}

// HandleCreateCustomAgent 处理 POST /api/v1/sessions/{id}/custom-agents
func (h *SessionHandler) HandleCreateCustomAgent(w http.ResponseWriter, r *http.Request) {
	var def definition.Definition
	if err := DecodeJSONBody(w, r, &def, h.logger); err != nil {
		return
	}
	var out api.SessionSummary
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		if err := reg.RegisterCustomAgent(&def); err != nil {
			return err
		}
		out = api.NewSessionSummary(reg)
		return nil
	})
	h.respond(w, r, http.StatusCreated, out, err)
}

// HandleDeleteCustomAgent 处理 DELETE /api/v1/sessions/{id}/custom-agents/{name}
func (h *SessionHandler) HandleDeleteCustomAgent(w http.ResponseWriter, r *http.Request) {
	var out api.SessionSummary
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		if err := reg.RemoveCustomAgent(r.PathValue("name")); err != nil {
			return err
		}
		out = api.NewSessionSummary(reg)
		return nil
	})
	h.respond(w, r, http.StatusOK, out, err)
}

// HandleSetExperiment 处理 PUT /api/v1/sessions/{id}/experiment
func (h *SessionHandler) HandleSetExperiment(w http.ResponseWriter, r *http.Request) {
	var exp api.Experiment
	if err := DecodeJSONBody(w, r, &exp, h.logger); err != nil {
		return
	}
	var out api.SessionSummary
	err := h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		reg.SetExperiment(exp.ID, exp.Variant)
		out = api.NewSessionSummary(reg)
		return nil
	})
	h.respond(w, r, http.StatusOK, out, err)
}

// HandleCheckpoint 处理 POST /api/v1/sessions/{id}/checkpoint
func (h *SessionHandler) HandleCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.Checkpoint(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"session_id": id})
}

// HandleEnd 处理 DELETE /api/v1/sessions/{id}，结束会话并删除其快照
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.manager.End(r.Context(), id); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]string{"session_id": id})
}

func (h *SessionHandler) effective(reg *session.Registry, name string, out *api.EffectiveAgent) error {
	def, err := reg.ResolveEffective(name)
	if err != nil {
		return err
	}
	out.Agent = def
	out.Custom = reg.IsCustom(name)
	if rec, ok := reg.Record(name); ok {
		out.Record = &rec
	}
	return nil
}

func (h *SessionHandler) isAdmin(r *http.Request) bool {
	if h.adminRole == "" {
		return true
	}
	role, _ := ctxkeys.Role(r.Context())
	return role == h.adminRole
}

func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, status, data)
}
