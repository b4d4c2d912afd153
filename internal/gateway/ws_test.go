package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/logging"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

// connectConsole dials the gateway and completes the handshake with token.
func connectConsole(t *testing.T, ts *httptest.Server, token string) (*websocket.Conn, Frame) {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	challenge := readFrame(t, conn)
	require.Equal(t, FrameTypeEvent, challenge.Type)
	require.Equal(t, EventChallenge, challenge.Event)

	req, err := NewRequest("c1", "connect", ConnectParams{
		Protocol: ProtocolVersion,
		Client:   ClientInfo{ID: "test-console"},
		Auth:     &ConnectAuth{Token: token},
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	return conn, readFrame(t, conn)
}

func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))
	for {
		f := readFrame(t, conn)
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

func TestConsoleHandshake(t *testing.T) {
	_, ts := newTestServer(t, &fakeConcierge{})

	_, hello := connectConsole(t, ts, "console-secret")
	require.NotNil(t, hello.OK)
	assert.True(t, *hello.OK)
	assert.Equal(t, "c1", hello.ID)

	var ok HelloOK
	require.NoError(t, json.Unmarshal(hello.Payload, &ok))
	assert.Equal(t, ProtocolVersion, ok.Protocol)
	assert.NotEmpty(t, ok.ConnID)
	assert.Equal(t, []string{"chat.send", "health", "session.list", "session.reset"}, ok.Methods)
	assert.Contains(t, ok.Events, EventChat)
}

func TestConsoleHandshakeRejectsBadToken(t *testing.T) {
	srv, ts := newTestServer(t, &fakeConcierge{})

	conn, res := connectConsole(t, ts, "wrong")
	require.NotNil(t, res.OK)
	assert.False(t, *res.OK)
	require.NotNil(t, res.Error)
	assert.Equal(t, "unauthorized", res.Error.Code)
	assert.Equal(t, "token_mismatch", res.Error.Message)

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.True(t, errors.As(err, &closeErr))
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)

	assert.Eventually(t, func() bool {
		srv.limiter.mu.Lock()
		defer srv.limiter.mu.Unlock()
		return len(srv.limiter.failures) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, srv.clients.Count())
}

func TestConsoleRefusedWithoutServerCredentials(t *testing.T) {
	t.Setenv("GAIA_GATEWAY_TOKEN", "")
	t.Setenv("GAIA_GATEWAY_PASSWORD", "")

	cfg := testGatewayConfig()
	cfg.Auth.Token = ""
	srv := New(cfg, &fakeConcierge{}, logging.New(nil, "silent"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, res := connectConsole(t, ts, "anything")
	require.NotNil(t, res.Error)
	assert.Equal(t, "server token not configured", res.Error.Message)
}

func TestConsoleRateLimited(t *testing.T) {
	srv, ts := newTestServer(t, &fakeConcierge{})
	for i := 0; i < authRateMaxFails; i++ {
		srv.limiter.recordFailure("127.0.0.1:1")
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestConsoleChatSend(t *testing.T) {
	fc := &fakeConcierge{result: &agent.TurnResult{
		SessionID: "s1",
		Response:  "Hola",
		Model:     "gpt-4.1-mini",
		Duration:  1500 * time.Millisecond,
	}}
	_, ts := newTestServer(t, fc)
	conn, _ := connectConsole(t, ts, "console-secret")

	res := call(t, conn, "r1", "chat.send", chatSendParams{SessionID: "s1", Message: "hola", Token: "tok"})
	require.True(t, *res.OK)

	var payload struct {
		Chat       ChatResponse `json:"chat"`
		Model      string       `json:"model"`
		DurationMs int64        `json:"durationMs"`
	}
	require.NoError(t, json.Unmarshal(res.Payload, &payload))
	assert.Equal(t, "Hola", payload.Chat.Response)
	assert.Equal(t, "gpt-4.1-mini", payload.Model)
	assert.Equal(t, int64(1500), payload.DurationMs)
	assert.Equal(t, agent.TurnRequest{SessionID: "s1", Message: "hola", Token: "tok"}, fc.requests[0])
}

func TestConsoleChatSendErrors(t *testing.T) {
	_, ts := newTestServer(t, &fakeConcierge{runErr: errors.New("model down")})
	conn, _ := connectConsole(t, ts, "console-secret")

	res := call(t, conn, "r1", "chat.send", chatSendParams{SessionID: "s1"})
	require.NotNil(t, res.Error)
	assert.Equal(t, "invalid_params", res.Error.Code)

	res = call(t, conn, "r2", "chat.send", chatSendParams{SessionID: "s1", Message: "hola"})
	require.NotNil(t, res.Error)
	assert.Equal(t, "agent_error", res.Error.Code)
	assert.Equal(t, "model down", res.Error.Message)
}

func TestConsoleSessions(t *testing.T) {
	fc := &fakeConcierge{sessions: []string{"b", "a"}}
	_, ts := newTestServer(t, fc)
	conn, _ := connectConsole(t, ts, "console-secret")

	res := call(t, conn, "l1", "session.list", nil)
	require.True(t, *res.OK)
	assert.JSONEq(t, `{"sessions":["b","a"]}`, string(res.Payload))

	res = call(t, conn, "x1", "session.reset", sessionParams{SessionID: "a"})
	require.True(t, *res.OK)
	var reset ResetResponse
	require.NoError(t, json.Unmarshal(res.Payload, &reset))
	assert.Equal(t, "success", reset.Status)
	assert.Equal(t, []string{"a"}, fc.resets)

	res = call(t, conn, "x2", "session.reset", nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, "invalid_params", res.Error.Code)
}

func TestConsoleHealthAndUnknownMethod(t *testing.T) {
	_, ts := newTestServer(t, &fakeConcierge{sessions: []string{"a", "b"}})
	conn, _ := connectConsole(t, ts, "console-secret")

	res := call(t, conn, "h1", "health", nil)
	require.True(t, *res.OK)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(res.Payload, &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Clients)
	assert.Equal(t, 2, health.Sessions)

	res = call(t, conn, "u1", "agent.run", nil)
	require.NotNil(t, res.Error)
	assert.Equal(t, "method_not_found", res.Error.Code)
}

func TestConsoleReceivesChatEvents(t *testing.T) {
	hm := hooks.NewManager(logging.New(nil, "silent"))
	srv, ts := newTestServer(t, &fakeConcierge{}, WithHooks(hm))
	conn, _ := connectConsole(t, ts, "console-secret")

	require.Eventually(t, func() bool { return srv.clients.Count() == 1 }, time.Second, 10*time.Millisecond)
	hm.Emit(context.Background(), hooks.EventToolExecuted, map[string]any{
		"sessionId": "s1",
		"tool":      "recomendar_lugares_google_places",
	})

	f := readFrame(t, conn)
	assert.Equal(t, FrameTypeEvent, f.Type)
	assert.Equal(t, EventChat, f.Event)
	assert.Equal(t, int64(1), f.Seq)

	var ev ChatEvent
	require.NoError(t, json.Unmarshal(f.Payload, &ev))
	assert.Equal(t, hooks.EventToolExecuted, ev.Kind)
	assert.Equal(t, "s1", ev.Data["sessionId"])
}
