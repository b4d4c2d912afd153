package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/logging"
)

// rpcMethod serves one console request. It must answer exactly once.
type rpcMethod func(call *rpcCall)

type rpcCall struct {
	ctx   context.Context
	from  *console
	frame Frame
	log   *logging.Logger
}

func (c *rpcCall) ok(payload any) {
	if err := c.from.reply(c.frame.ID, payload); err != nil {
		c.log.Warn().Err(err).Str("method", c.frame.Method).Msg("sending response failed")
	}
}

func (c *rpcCall) fail(code, message string) {
	if err := c.from.fail(c.frame.ID, code, message); err != nil {
		c.log.Warn().Err(err).Str("method", c.frame.Method).Msg("sending error failed")
	}
}

// params decodes the request params. Absent params leave v untouched.
func (c *rpcCall) params(v any) error {
	if len(c.frame.Params) == 0 {
		return nil
	}
	return json.Unmarshal(c.frame.Params, v)
}

func (s *Server) rpcMethods() map[string]rpcMethod {
	return map[string]rpcMethod{
		"health":        s.rpcHealth,
		"chat.send":     s.rpcChatSend,
		"session.reset": s.rpcSessionReset,
		"session.list":  s.rpcSessionList,
	}
}

func (s *Server) rpcHealth(call *rpcCall) {
	call.ok(s.health(true))
}

type chatSendParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Token     string `json:"token,omitempty"`
}

// rpcChatSend runs a turn for the console. Unlike POST /chat, a failed
// turn is an error response.
func (s *Server) rpcChatSend(call *rpcCall) {
	var p chatSendParams
	if err := call.params(&p); err != nil {
		call.fail("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.SessionID) == "" || strings.TrimSpace(p.Message) == "" {
		call.fail("invalid_params", "sessionId and message are required")
		return
	}

	ctx, cancel := context.WithTimeout(call.ctx, s.turnTimeout)
	defer cancel()

	res, err := s.concierge.Run(ctx, agent.TurnRequest{SessionID: p.SessionID, Message: p.Message, Token: p.Token})
	if err != nil {
		call.fail("agent_error", err.Error())
		return
	}
	call.ok(map[string]any{
		"chat":       NewChatResponse(res),
		"model":      res.Model,
		"usage":      res.Usage,
		"greeting":   res.Greeting,
		"durationMs": res.Duration.Milliseconds(),
	})
}

type sessionParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) rpcSessionReset(call *rpcCall) {
	var p sessionParams
	if err := call.params(&p); err != nil {
		call.fail("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.SessionID) == "" {
		call.fail("invalid_params", "sessionId is required")
		return
	}
	if err := s.concierge.Reset(call.ctx, p.SessionID); err != nil {
		call.fail("reset_failed", err.Error())
		return
	}
	call.ok(resetSuccess(p.SessionID))
}

func (s *Server) rpcSessionList(call *rpcCall) {
	ids := s.concierge.Sessions()
	if ids == nil {
		ids = []string{}
	}
	call.ok(map[string]any{"sessions": ids})
}
