package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/agent/supervisor"
	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/types"
)

// maxAdvisoryTimeout caps client-supplied fan-out deadlines.
const maxAdvisoryTimeout = 30 * time.Second

// AdvisoryHandler runs supervisor fan-outs for a session.
type AdvisoryHandler struct {
	manager    *session.Manager
	supervisor *supervisor.Supervisor
	advisors   []string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewAdvisoryHandler 创建顾问处理器。advisors 是请求未指定时的默认顾问集合。
func NewAdvisoryHandler(manager *session.Manager, sup *supervisor.Supervisor, advisors []string, timeout time.Duration, logger *zap.Logger) *AdvisoryHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdvisoryHandler{
		manager:    manager,
		supervisor: sup,
		advisors:   advisors,
		timeout:    timeout,
		logger:     logger.With(zap.String("handler", "advisories")),
	}
}

// HandleAdvise 处理 POST /api/v1/sessions/{id}/advisories
func (h *AdvisoryHandler) HandleAdvise(w http.ResponseWriter, r *http.Request) {
	var req api.AdvisoryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	names := req.Advisors
	if len(names) == 0 {
		names = h.advisors
	}
	if len(names) == 0 {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "no advisors requested or configured", h.logger)
		return
	}
	timeout, err := advisoryTimeout(req.TimeoutMS, h.timeout)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	var out supervisor.Recommendation
	err = h.manager.With(r.Context(), r.PathValue("id"), func(reg *session.Registry) error {
		out = h.supervisor.Recommend(r.Context(), reg, names, req.Context, timeout)
		return nil
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, out)
}

// advisoryTimeout resolves a client timeout_ms against the configured
// default. Zero uses def; larger values are capped at maxAdvisoryTimeout.
func advisoryTimeout(ms int, def time.Duration) (time.Duration, error) {
	switch {
	case ms < 0:
		return 0, types.NewError(types.ErrInvalidRequest, "timeout_ms must not be negative")
	case ms == 0:
		return def, nil
	default:
		return min(time.Duration(ms)*time.Millisecond, maxAdvisoryTimeout), nil
	}
}
