package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sourcegraph/conc"

	"github.com/soyeahso/gaia/internal/version"
)

const handshakeTimeout = 10 * time.Second

// handleWebSocket upgrades an operator console connection, authenticates
// it and serves its RPC requests.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("console rate limited")
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "too many failed attempts"})
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("console handshake failed")
		s.limiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	s.clients.add(client)
	defer s.clients.remove(client)

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	s.readLoop(ctx, client)
}

// handshake runs challenge → connect → hello.
func (s *Server) handshake(conn *websocket.Conn) (*console, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, fmt.Errorf("sending challenge: %w", err)
	}

	var frame Frame
	if err := conn.ReadJSON(&frame); err != nil {
		return nil, fmt.Errorf("reading connect: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		rejectAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		rejectAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
		return nil, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.Protocol != 0 && params.Protocol != ProtocolVersion {
		rejectAndClose(conn, frame.ID, "protocol_error", fmt.Sprintf("unsupported protocol %d", params.Protocol))
		return nil, fmt.Errorf("unsupported protocol %d", params.Protocol)
	}

	result := Authorize(s.auth, params.Auth)
	if !result.OK {
		rejectAndClose(conn, frame.ID, "unauthorized", result.Reason)
		return nil, fmt.Errorf("auth failed: %s", result.Reason)
	}

	_ = conn.SetReadDeadline(time.Time{})
	client := newConsole(conn, params.Client)
	s.log.Debug().Str("connId", client.id).Str("auth", result.Method).Msg("console authenticated")

	resp, err := NewResponse(frame.ID, HelloOK{
		Protocol:   ProtocolVersion,
		Version:    version.Version,
		ConnID:     client.id,
		Methods:    s.Methods(),
		Events:     []string{EventChallenge, EventChat},
		MaxPayload: maxPayload,
	})
	if err != nil {
		return nil, fmt.Errorf("creating hello: %w", err)
	}
	if err := client.write(resp); err != nil {
		return nil, fmt.Errorf("sending hello: %w", err)
	}
	return client, nil
}

// readLoop serves requests until the connection closes. Requests run
// concurrently so a long chat turn does not block session.list.
func (s *Server) readLoop(ctx context.Context, client *console) {
	var wg conc.WaitGroup
	defer wg.Wait()

	for {
		frame, err := client.next()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.id).Msg("console closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", client.id).Msg("console read ended")
			}
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		wg.Go(func() { s.dispatch(ctx, client, frame) })
	}
}

func (s *Server) dispatch(ctx context.Context, client *console, frame Frame) {
	method, ok := s.methods[frame.Method]
	if !ok {
		_ = client.fail(frame.ID, "method_not_found", "unknown method: "+frame.Method)
		return
	}
	method(&rpcCall{ctx: ctx, from: client, frame: frame, log: s.log})
}

func rejectAndClose(conn *websocket.Conn, reqID, code, message string) {
	_ = conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
}
