package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/domain"
)

const maxBodyBytes = 1 << 20

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Token     string `json:"token,omitempty"`
}

// ChatResponse is the body of a successful POST /chat. The result fields
// are null when the matching search did not run in this turn.
type ChatResponse struct {
	Response           string           `json:"response"`
	ResultGooglePlaces json.RawMessage  `json:"result_google_places"`
	ResultClapzy       json.RawMessage  `json:"result_clapzy"`
	ToolGooglePlaces   *domain.Message  `json:"tool_google_places"`
	ToolClapzy         *domain.Message  `json:"tool_clapzy"`
	Query              string           `json:"query,omitempty"`
	Messages           []domain.Message `json:"messages"`
}

// ResetRequest is the body of POST /reset_session.
type ResetRequest struct {
	SessionID string `json:"session_id"`
}

// ResetResponse reports the outcome of a session reset.
type ResetResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ErrorResponse carries a failure message.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by health checks. The public endpoint only
// reports status; the console health method fills in the rest.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version,omitempty"`
	Clients  int    `json:"clients,omitempty"`
	Sessions int    `json:"sessions,omitempty"`
	UptimeMs int64  `json:"uptimeMs,omitempty"`
}

// NewChatResponse shapes a turn result for the chat API.
func NewChatResponse(res *agent.TurnResult) ChatResponse {
	msgs := res.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return ChatResponse{
		Response:           res.Response,
		ResultGooglePlaces: res.Places,
		ResultClapzy:       res.Partners,
		ToolGooglePlaces:   res.PlacesTool,
		ToolClapzy:         res.PartnerTool,
		Query:              res.PlacesQuery,
		Messages:           msgs,
	}
}

// handleChat runs one turn. Turn failures are reported as {error} with
// status 200; only unusable request bodies get a 4xx.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	switch {
	case strings.TrimSpace(req.SessionID) == "":
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "session_id is required"})
		return
	case strings.TrimSpace(req.Message) == "":
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "message is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.turnTimeout)
	defer cancel()

	res, err := s.concierge.Run(ctx, agent.TurnRequest{
		SessionID: req.SessionID,
		Message:   req.Message,
		Token:     req.Token,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("sessionId", req.SessionID).Msg("chat turn failed")
		writeJSON(w, http.StatusOK, ErrorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, NewChatResponse(res))
}

// handleResetSession drops a session's history and cached payloads.
// Unknown sessions reset successfully.
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, resetFailure("", err))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, resetFailure("", agent.ErrMissingSessionID))
		return
	}

	if err := s.concierge.Reset(r.Context(), req.SessionID); err != nil {
		writeJSON(w, http.StatusOK, resetFailure(req.SessionID, err))
		return
	}
	writeJSON(w, http.StatusOK, resetSuccess(req.SessionID))
}

func resetSuccess(sid string) ResetResponse {
	return ResetResponse{
		Status:  "success",
		Message: fmt.Sprintf("Memoria completa de sesión %s reseteada correctamente", sid),
	}
}

func resetFailure(sid string, err error) ResetResponse {
	return ResetResponse{
		Status:  "error",
		Message: fmt.Sprintf("Error al resetear sesión %s", sid),
		Error:   err.Error(),
	}
}

// handleHealth reports liveness without details.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.health(false))
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
