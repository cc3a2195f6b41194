package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/render"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/agent/supervisor"
	"github.com/BaSui01/voiceflow/api"
	"github.com/BaSui01/voiceflow/types"
)

// maxFrameBytes bounds a single client frame.
const maxFrameBytes = 64 << 10

// =============================================================================
// 🔌 传输控制通道 Handler
// =============================================================================

// TransportConfig configures the transport control channel.
type TransportConfig struct {
	// Mode selects the model variant sent in agent updates.
	Mode string
	// Advisors and AdvisoryTimeout are the defaults for advise frames.
	Advisors        []string
	AdvisoryTimeout time.Duration
	// OriginPatterns are passed to websocket.Accept. Empty allows only
	// same-origin browser clients; non-browser transports send no Origin.
	OriginPatterns []string
	// WriteTimeout bounds each frame write. Default 5s.
	WriteTimeout time.Duration
}

// TransportHandler serves a WebSocket per session for the realtime
// transport. Frames from one connection are handled in order, each under
// the session lock, so a call's turn events keep their order.
type TransportHandler struct {
	manager    *session.Manager
	resolver   *handoff.Resolver
	supervisor *supervisor.Supervisor
	renderer   render.Renderer
	cfg        TransportConfig
	logger     *zap.Logger

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// transportState is per-connection state.
type transportState struct {
	sessionID string
	// vars are the system variables of the last successful resolution.
	vars map[string]any
}

// NewTransportHandler 创建传输控制通道处理器
func NewTransportHandler(manager *session.Manager, resolver *handoff.Resolver, sup *supervisor.Supervisor, renderer render.Renderer, cfg TransportConfig, logger *zap.Logger) *TransportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = render.NewTextRenderer()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &TransportHandler{
		manager:    manager,
		resolver:   resolver,
		supervisor: sup,
		renderer:   renderer,
		cfg:        cfg,
		logger:     logger.With(zap.String("handler", "transport")),
		conns:      make(map[*websocket.Conn]struct{}),
	}
}

// HandleConnect 处理 GET /api/v1/sessions/{id}/transport（WebSocket 升级）
func (h *TransportHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	st := &transportState{sessionID: r.PathValue("id")}
	logger := h.logger.With(zap.String("session_id", st.sessionID))

	// Server read/write timeouts would otherwise cut the hijacked connection.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	if !h.track(conn) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.untrack(conn)
	conn.SetReadLimit(maxFrameBytes)

	logger.Info("transport connected")
	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				logger.Info("transport disconnected")
			default:
				logger.Warn("transport read failed", zap.Error(err))
			}
			conn.CloseNow()
			return
		}

		var out []api.Frame
		var in api.Frame
		switch {
		case typ != websocket.MessageText:
			out = []api.Frame{errorFrame("", invalidRequest("frames must be JSON text messages"))}
		case json.Unmarshal(data, &in) != nil:
			out = []api.Frame{errorFrame("", invalidRequest("malformed frame"))}
		default:
			out = h.dispatch(ctx, st, in)
		}

		for _, f := range out {
			wctx, cancel := context.WithTimeout(ctx, h.cfg.WriteTimeout)
			err := wsjson.Write(wctx, conn, f)
			cancel()
			if err != nil {
				logger.Warn("transport write failed", zap.Error(err))
				conn.CloseNow()
				return
			}
		}
	}
}

// Close closes every open transport connection with StatusGoingAway and
// refuses new ones.
func (h *TransportHandler) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	var g errgroup.Group
	for _, c := range conns {
		g.Go(func() error {
			if err := c.Close(websocket.StatusGoingAway, "server shutting down"); err != nil {
				h.logger.Debug("transport close", zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}

// Connections returns the number of open transport connections.
func (h *TransportHandler) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *TransportHandler) track(c *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *TransportHandler) untrack(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// =============================================================================
// 📨 帧分发
// =============================================================================

func (h *TransportHandler) dispatch(ctx context.Context, st *transportState, in api.Frame) []api.Frame {
	var out []api.Frame
	err := h.manager.With(ctx, st.sessionID, func(reg *session.Registry) error {
		var err error
		switch in.Type {
		case api.FrameStart:
			out, err = h.start(ctx, reg, st, in)
		case api.FrameHandoff:
			out, err = h.handoff(ctx, reg, st, in)
		case api.FrameAdvise:
			out, err = h.advise(ctx, reg, in)
		case api.FrameOverride:
			out, err = h.override(reg, st, in)
		default:
			err = invalidRequest(fmt.Sprintf("unknown frame type %q", in.Type))
		}
		return err
	})
	if err != nil {
		return []api.Frame{errorFrame(in.ID, err)}
	}
	return out
}

func (h *TransportHandler) start(ctx context.Context, reg *session.Registry, st *transportState, in api.Frame) ([]api.Frame, error) {
	if in.Start == nil || in.Start.Agent == "" {
		return nil, invalidRequest("start.agent is required")
	}
	res := h.resolver.Start(ctx, reg, in.Start.Agent, in.Start.SystemVars)
	return h.resolved(reg, st, in.ID, res)
}

// handoff resolves a token or generic handoff. Without system_vars the
// variables of the previous resolution are carried forward.
func (h *TransportHandler) handoff(ctx context.Context, reg *session.Registry, st *transportState, in api.Frame) ([]api.Frame, error) {
	if in.Handoff == nil {
		return nil, invalidRequest("handoff payload is required")
	}
	switch {
	case in.Handoff.Token == "" && in.Handoff.TargetAgent == "":
		return nil, invalidRequest("token or target_agent is required")
	case in.Handoff.Token != "" && in.Handoff.TargetAgent != "":
		return nil, invalidRequest("token and target_agent are exclusive")
	}

	req := in.Handoff.ToResolverRequest()
	if req.SystemVars == nil {
		req.SystemVars = st.vars
	}
	var res handoff.Resolution
	if req.Token != "" {
		res = h.resolver.Resolve(ctx, reg, req)
	} else {
		res = h.resolver.ResolveGeneric(ctx, reg, req)
	}
	return h.resolved(reg, st, in.ID, res)
}

func (h *TransportHandler) advise(ctx context.Context, reg *session.Registry, in api.Frame) ([]api.Frame, error) {
	if in.Advise == nil {
		return nil, invalidRequest("advise payload is required")
	}
	names := in.Advise.Advisors
	if len(names) == 0 {
		names = h.cfg.Advisors
	}
	if len(names) == 0 {
		return nil, invalidRequest("no advisors requested or configured")
	}
	timeout, err := advisoryTimeout(in.Advise.TimeoutMS, h.cfg.AdvisoryTimeout)
	if err != nil {
		return nil, err
	}
	rec := h.supervisor.Recommend(ctx, reg, names, in.Advise.Context, timeout)
	return []api.Frame{{ID: in.ID, Type: api.FrameAdvice, Advice: &rec}}, nil
}

// override applies a patch with source "transport". Patching the active
// agent also pushes an agent update.
func (h *TransportHandler) override(reg *session.Registry, st *transportState, in api.Frame) ([]api.Frame, error) {
	if in.Override == nil || in.Override.Agent == "" {
		return nil, invalidRequest("override.agent is required")
	}
	overrides := in.Override.Patch.Overrides()
	if len(overrides) == 0 {
		return nil, invalidRequest("no override fields set")
	}
	name := in.Override.Agent
	for _, o := range overrides {
		if err := reg.ApplyOverride(name, o, session.SourceTransport); err != nil {
			return nil, err
		}
	}

	out := []api.Frame{{ID: in.ID, Type: api.FrameAck}}
	if name == reg.ActiveAgent() {
		update, err := h.agentUpdate(reg, name, st.vars)
		if err != nil {
			return nil, err
		}
		out = append(out, api.Frame{ID: in.ID, Type: api.FrameAgentUpdate, Agent: update})
	}
	return out, nil
}

// resolved turns a resolution into frames. A failed resolution is a
// resolution frame with an error; a successful one is followed by the
// target's agent update.
func (h *TransportHandler) resolved(reg *session.Registry, st *transportState, id string, res handoff.Resolution) ([]api.Frame, error) {
	resp := api.HandoffResponse{Resolution: res}
	if !res.Success {
		f := errorFrame(id, res.Err)
		f.Type = api.FrameResolution
		f.Resolution = &resp
		return []api.Frame{f}, nil
	}

	st.vars = maps.Clone(res.SystemVars)
	update, err := h.agentUpdate(reg, res.TargetAgent, st.vars)
	if err != nil {
		return nil, err
	}
	resp.Tools = update.Tools
	return []api.Frame{
		{ID: id, Type: api.FrameResolution, Resolution: &resp},
		{ID: id, Type: api.FrameAgentUpdate, Agent: update},
	}, nil
}

func (h *TransportHandler) agentUpdate(reg *session.Registry, name string, vars map[string]any) (*api.AgentUpdate, error) {
	def, err := reg.ResolveEffective(name)
	if err != nil {
		return nil, err
	}
	tools, err := h.resolver.ToolsFor(reg, name)
	if err != nil {
		return nil, err
	}
	prompt, err := def.RenderPrompt(h.renderer, vars)
	if err != nil {
		h.logger.Warn("prompt render failed, sending raw template",
			zap.String("agent", name),
			zap.Error(err),
		)
	}
	return &api.AgentUpdate{
		Agent:        name,
		Instructions: prompt,
		Voice:        def.Voice,
		Model:        def.Model.ForMode(h.cfg.Mode),
		Tools:        tools,
		Session:      def.SessionSettings,
	}, nil
}

func invalidRequest(msg string) error {
	return types.NewError(types.ErrInvalidRequest, msg)
}

func errorFrame(id string, err error) api.Frame {
	info, _ := errorInfo(err)
	return api.Frame{
		ID:    id,
		Type:  api.FrameError,
		Error: &api.ErrorPayload{Code: info.Code, Message: info.Message, Details: info.Details},
	}
}
