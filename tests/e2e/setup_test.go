// E2E 测试环境与通用辅助函数。
//
// 以真实 HTTP 服务器 + Redis 存储（默认 miniredis）搭建完整编排栈，
// 支持模拟进程重启后从存储恢复会话。
//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/voiceflow/agent/greeting"
	"github.com/BaSui01/voiceflow/agent/handoff"
	"github.com/BaSui01/voiceflow/agent/persistence"
	"github.com/BaSui01/voiceflow/agent/render"
	"github.com/BaSui01/voiceflow/agent/session"
	"github.com/BaSui01/voiceflow/agent/supervisor"
	"github.com/BaSui01/voiceflow/api/handlers"
	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/testutil/fixtures"
)

// --- 测试环境 ---

// TestEnv E2E 测试环境
type TestEnv struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   persistence.Store
	Manager *session.Manager
	Server  *httptest.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// redisAddr returns VOICEFLOW_REDIS_ADDR or starts a miniredis.
func redisAddr(t *testing.T) string {
	t.Helper()
	if addr := os.Getenv("VOICEFLOW_REDIS_ADDR"); addr != "" {
		return addr
	}
	return miniredis.RunT(t).Addr()
}

// --- 环境设置 ---

// NewTestEnv 创建新的测试环境
func NewTestEnv(t *testing.T, addr string) *TestEnv {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	cfg := config.DefaultConfig()
	cfg.Persistence.Type = persistence.StoreTypeRedis
	cfg.Persistence.Redis.Addr = addr
	cfg.Session.KeyPrefix = "e2e:session:"
	logger := zaptest.NewLogger(t)

	store, err := persistence.NewStore(ctx, cfg.Persistence, logger)
	require.NoError(t, err)

	writer := persistence.NewWriter(store, persistence.WriterOptions{KeyPrefix: cfg.Session.KeyPrefix, Logger: logger})
	base := fixtures.Registry()
	manager := session.NewManager(base, writer, session.ManagerConfig{TTL: cfg.Session.TTL}, logger, nil)

	resolver := handoff.NewResolver(handoff.DefaultScenario(), greeting.NewSelector(render.NewTextRenderer(), logger), handoff.WithLogger(logger))
	sup := supervisor.New(supervisor.WithLogger(logger))

	agents := handlers.NewAgentHandler(base, logger)
	sessions := handlers.NewSessionHandler(manager, logger, handlers.WithAdminRole(cfg.Auth.AdminRole))
	handoffs := handlers.NewHandoffHandler(manager, resolver, logger)
	advisories := handlers.NewAdvisoryHandler(manager, sup, []string{fixtures.Supervisor}, cfg.Supervisor.Timeout, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/agents", agents.HandleList)
	mux.HandleFunc("POST /api/v1/sessions", sessions.HandleCreate)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sessions.HandleGet)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.HandleEnd)
	mux.HandleFunc("GET /api/v1/sessions/{id}/agents/{name}", sessions.HandleGetAgent)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}/agents/{name}", sessions.HandlePatchAgent)
	mux.HandleFunc("POST /api/v1/sessions/{id}/custom-agents", sessions.HandleCreateCustomAgent)
	mux.HandleFunc("POST /api/v1/sessions/{id}/checkpoint", sessions.HandleCheckpoint)
	mux.HandleFunc("POST /api/v1/sessions/{id}/start", handoffs.HandleStart)
	mux.HandleFunc("POST /api/v1/sessions/{id}/handoff", handoffs.HandleHandoff)
	mux.HandleFunc("POST /api/v1/sessions/{id}/advisories", advisories.HandleAdvise)

	env := &TestEnv{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		Manager: manager,
		Server:  httptest.NewServer(mux),
		ctx:     ctx,
		cancel:  cancel,
	}
	t.Cleanup(env.Cleanup)
	return env
}

// Context 返回测试上下文
func (e *TestEnv) Context() context.Context {
	return e.ctx
}

// Cleanup 停止服务器、刷写会话并关闭存储。可重复调用。
func (e *TestEnv) Cleanup() {
	if e.Server == nil {
		return
	}
	e.Server.Close()
	_ = e.Manager.Close(e.ctx)
	_ = e.Store.Close()
	e.cancel()
	e.Server = nil
}

// --- HTTP 辅助 ---

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *handlers.ErrorInfo `json:"error"`
}

// Do 发送 JSON 请求并解析响应信封
func (e *TestEnv) Do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(e.ctx, method, e.Server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

// Decode 解析信封中的 data 字段
func Decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}
