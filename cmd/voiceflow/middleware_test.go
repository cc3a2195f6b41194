package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/voiceflow/config"
	"github.com/BaSui01/voiceflow/internal/ctxkeys"
	"github.com/BaSui01/voiceflow/internal/metrics"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ctxkeys.RequestID(r.Context())
	}))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "call-42")
	w = serve(h, req)
	assert.Equal(t, "call-42", seen)
	assert.Equal(t, "call-42", w.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recovery(zap.NewNop()))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"INTERNAL_ERROR"`)
}

func TestSecurityHeaders_ChainedWithRequestID(t *testing.T) {
	h := Chain(http.HandlerFunc(okHandler), SecurityHeaders(), RequestID())

	w := serve(h, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestAuthenticate(t *testing.T) {
	cfg := config.AuthConfig{
		APIKeys:   []string{"k1"},
		JWTSecret: "s3cret",
		JWTIssuer: "voiceflow-test",
		AdminRole: "admin",
	}
	var subject, role string
	h := Authenticate(cfg, []string{"/health"}, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = ctxkeys.Subject(r.Context())
		role, _ = ctxkeys.Role(r.Context())
	}))

	valid := signToken(t, "s3cret", jwt.MapClaims{
		"sub":  "agent-7",
		"role": "supervisor",
		"iss":  "voiceflow-test",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, "s3cret", jwt.MapClaims{
		"sub": "agent-7",
		"iss": "voiceflow-test",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongIssuer := signToken(t, "s3cret", jwt.MapClaims{"sub": "x", "iss": "other"})
	wrongSecret := signToken(t, "nope", jwt.MapClaims{"sub": "x", "iss": "voiceflow-test"})

	tests := []struct {
		name        string
		path        string
		header      string
		value       string
		wantCode    int
		wantSubject string
		wantRole    string
	}{
		{"public path", "/health", "", "", http.StatusOK, "", ""},
		{"no credentials", "/api/v1/agents", "", "", http.StatusUnauthorized, "", ""},
		{"api key", "/api/v1/agents", "X-API-Key", "k1", http.StatusOK, "api-key", "admin"},
		{"bad api key", "/api/v1/agents", "X-API-Key", "k2", http.StatusUnauthorized, "", ""},
		{"jwt", "/api/v1/agents", "Authorization", "Bearer " + valid, http.StatusOK, "agent-7", "supervisor"},
		{"expired jwt", "/api/v1/agents", "Authorization", "Bearer " + expired, http.StatusUnauthorized, "", ""},
		{"wrong issuer", "/api/v1/agents", "Authorization", "Bearer " + wrongIssuer, http.StatusUnauthorized, "", ""},
		{"wrong secret", "/api/v1/agents", "Authorization", "Bearer " + wrongSecret, http.StatusUnauthorized, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, role = "", ""
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := serve(h, req)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantSubject, subject)
			assert.Equal(t, tt.wantRole, role)
		})
	}
}

func TestAuthenticate_QueryKey(t *testing.T) {
	h := Authenticate(config.AuthConfig{APIKeys: []string{"k1"}}, nil, zap.NewNop())(http.HandlerFunc(okHandler))

	w := serve(h, httptest.NewRequest(http.MethodGet, "/x?api_key=k1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code, "query keys are off by default")

	h = Authenticate(config.AuthConfig{APIKeys: []string{"k1"}, AllowQueryAPIKey: true}, nil, zap.NewNop())(http.HandlerFunc(okHandler))
	w = serve(h, httptest.NewRequest(http.MethodGet, "/x?api_key=k1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticate_Disabled(t *testing.T) {
	h := Authenticate(config.AuthConfig{}, nil, zap.NewNop())(http.HandlerFunc(okHandler))
	w := serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimiter(ctx, 1, 2, zap.NewNop())(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		codes = append(codes, serve(h, req).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.0.0.2:5000"
	assert.Equal(t, http.StatusOK, serve(h, other).Code, "limits are per client IP")
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("test", reg, zap.NewNop())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/agents/{name}", okHandler)
	h := Chain(mux, RequestID(), MetricsMiddleware(collector))

	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/agents/Concierge", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/api/v1/agents/FraudAgent", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	families, err := reg.Gather()
	require.NoError(t, err)
	paths := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "test_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" {
					paths[l.GetValue()] += m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"/api/v1/agents/{name}": 2, "unmatched": 1}, paths)
}
