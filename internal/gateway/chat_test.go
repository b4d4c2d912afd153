package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/domain"
	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/logging"
)

type fakeConcierge struct {
	mu       sync.Mutex
	requests []agent.TurnRequest
	resets   []string
	result   *agent.TurnResult
	runErr   error
	resetErr error
	sessions []string
}

func (f *fakeConcierge) Run(_ context.Context, req agent.TurnRequest) (*agent.TurnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &agent.TurnResult{SessionID: req.SessionID, Response: "ok"}, nil
}

func (f *fakeConcierge) Reset(_ context.Context, sid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, sid)
	return f.resetErr
}

func (f *fakeConcierge) Sessions() []string { return f.sessions }

func testGatewayConfig() config.GatewayConfig {
	cfg := config.Defaults().Gateway
	cfg.Auth = config.GatewayAuth{Mode: AuthModeToken, Token: "console-secret"}
	return cfg
}

func newTestServer(t *testing.T, fc *fakeConcierge, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	srv := New(testGatewayConfig(), fc, logging.New(nil, "silent"), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestChatReturnsTurnResult(t *testing.T) {
	placesTool := &domain.Message{Role: domain.RoleTool, Content: `["Bar Uno"]`, ToolName: domain.ToolPlaces, ToolCallID: "c1", Turn: 1}
	fc := &fakeConcierge{result: &agent.TurnResult{
		SessionID:   "abc",
		Response:    "Te recomiendo Bar Uno",
		Places:      json.RawMessage(`[{"id":"p1","displayName":{"text":"Bar Uno"}}]`),
		PlacesQuery: "bares en Madrid",
		PlacesTool:  placesTool,
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: "bares en Madrid"}, *placesTool},
	}}
	_, ts := newTestServer(t, fc)

	resp, body := postJSON(t, ts.URL+"/chat", `{"session_id":"abc","message":"bares en Madrid","token":"tok"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	assert.Equal(t, "Te recomiendo Bar Uno", body["response"])
	places := body["result_google_places"].([]any)
	require.Len(t, places, 1)
	assert.Equal(t, "p1", places[0].(map[string]any)["id"])
	assert.Nil(t, body["result_clapzy"])
	assert.Nil(t, body["tool_clapzy"])
	assert.Equal(t, domain.ToolPlaces, body["tool_google_places"].(map[string]any)["toolName"])
	assert.Equal(t, "bares en Madrid", body["query"])
	assert.Len(t, body["messages"], 2)

	require.Len(t, fc.requests, 1)
	assert.Equal(t, agent.TurnRequest{SessionID: "abc", Message: "bares en Madrid", Token: "tok"}, fc.requests[0])
}

func TestChatNullResultsWithoutTools(t *testing.T) {
	_, ts := newTestServer(t, &fakeConcierge{})

	_, body := postJSON(t, ts.URL+"/chat", `{"session_id":"abc","message":"hola"}`)
	for _, key := range []string{"result_google_places", "result_clapzy", "tool_google_places", "tool_clapzy"} {
		v, present := body[key]
		assert.True(t, present, key)
		assert.Nil(t, v, key)
	}
	assert.Equal(t, []any{}, body["messages"])
}

func TestChatTurnErrorIsOK(t *testing.T) {
	_, ts := newTestServer(t, &fakeConcierge{runErr: errors.New("model unavailable")})

	resp, body := postJSON(t, ts.URL+"/chat", `{"session_id":"abc","message":"hola"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"error": "model unavailable"}, body)
}

func TestChatBadRequests(t *testing.T) {
	fc := &fakeConcierge{}
	_, ts := newTestServer(t, fc)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `hola`, "invalid JSON body"},
		{"empty", ``, "request body is empty"},
		{"missing session", `{"message":"hola"}`, "session_id is required"},
		{"blank message", `{"session_id":"abc","message":"  "}`, "message is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postJSON(t, ts.URL+"/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, body["error"], tt.want)
		})
	}
	assert.Empty(t, fc.requests)
}

func TestResetSession(t *testing.T) {
	fc := &fakeConcierge{}
	_, ts := newTestServer(t, fc)

	resp, body := postJSON(t, ts.URL+"/reset_session", `{"session_id":"abc"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{
		"status":  "success",
		"message": "Memoria completa de sesión abc reseteada correctamente",
	}, body)
	assert.Equal(t, []string{"abc"}, fc.resets)
}

func TestResetSessionFailure(t *testing.T) {
	_, ts := newTestServer(t, &fakeConcierge{resetErr: errors.New("store offline")})

	resp, body := postJSON(t, ts.URL+"/reset_session", `{"session_id":"abc"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Error al resetear sesión abc", body["message"])
	assert.Equal(t, "store offline", body["error"])
}

func TestResetSessionMissingID(t *testing.T) {
	fc := &fakeConcierge{}
	_, ts := newTestServer(t, fc)

	resp, body := postJSON(t, ts.URL+"/reset_session", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", body["status"])
	assert.Empty(t, fc.resets)
}

func TestHealthAndNotFound(t *testing.T) {
	_, ts := newTestServer(t, &fakeConcierge{sessions: []string{"a"}})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, HealthResponse{Status: "ok"}, health)

	resp, err = http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/chat")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "wrong method falls through to the catch-all")
}

func TestHooksRelayNeedsClients(t *testing.T) {
	hm := hooks.NewManager(logging.New(nil, "silent"))
	srv, _ := newTestServer(t, &fakeConcierge{}, WithHooks(hm))

	assert.Equal(t, 1, hm.Count(hooks.EventToolExecuted))
	hm.Emit(context.Background(), hooks.EventToolExecuted, map[string]any{"tool": "x"})
	assert.Zero(t, srv.eventSeq.Load(), "no sequence is spent without listeners")
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.GatewayConfig
		want string
	}{
		{config.GatewayConfig{Port: 8000}, "127.0.0.1:8000"},
		{config.GatewayConfig{Port: 8000, Bind: "loopback"}, "127.0.0.1:8000"},
		{config.GatewayConfig{Port: 8000, Bind: "lan"}, "0.0.0.0:8000"},
		{config.GatewayConfig{Port: 8000, Bind: "custom", CustomBindHost: "10.0.0.2"}, "10.0.0.2:8000"},
		{config.GatewayConfig{Port: 8000, Bind: "custom"}, "0.0.0.0:8000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
	}
}
