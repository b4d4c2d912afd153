package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/domain"
	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/llm"
	"github.com/soyeahso/gaia/internal/logging"
)

// DefaultMaxToolIterations limits how many tool call rounds a turn can run.
const DefaultMaxToolIterations = 5

// ErrMissingSessionID is returned for a turn or reset without a session id.
var ErrMissingSessionID = errors.New("session id is required")

// RunnerConfig configures the agent runner.
type RunnerConfig struct {
	Model     string
	Fallbacks []string
	Persona   Persona
	// Greeting enables the canned greeting that answers the first turn of a
	// new session, for personas that have greetings.
	Greeting          bool
	WindowSize        int
	MaxToolIterations int
	MaxTokens         int
	Temperature       *float64
	TopP              *float64
}

// TurnRequest is one chat message from a client.
type TurnRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Token     string `json:"token,omitempty"`
}

// TurnResult is the outcome of a turn.
//
// Places and Partners hold the raw records fetched by this turn's searches,
// or nil when the search did not run in this turn. PlacesTool and
// PartnerTool are the matching tool result messages.
type TurnResult struct {
	SessionID   string           `json:"sessionId"`
	Response    string           `json:"response"`
	Places      json.RawMessage  `json:"places,omitempty"`
	PlacesQuery string           `json:"placesQuery,omitempty"`
	Partners    json.RawMessage  `json:"partners,omitempty"`
	PlacesTool  *domain.Message  `json:"placesTool,omitempty"`
	PartnerTool *domain.Message  `json:"partnerTool,omitempty"`
	Messages    []domain.Message `json:"messages"`
	Greeting    bool             `json:"greeting,omitempty"`
	Model       string           `json:"model,omitempty"`
	Usage       llm.Usage        `json:"usage"`
	Duration    time.Duration    `json:"duration"`
}

// Runner is the turn orchestrator. It records the user message, runs the
// model with tools over the trimmed window, records the reply and collects
// the raw tool payloads the turn produced.
type Runner struct {
	cfg      RunnerConfig
	client   llm.Client
	sessions SessionStore
	tools    *ToolRegistry
	handoff  *cache.Handoff
	hooks    *hooks.Manager
	locks    *sessionLocks
	log      *logging.Logger
}

// NewRunner creates an agent runner. hm may be nil.
func NewRunner(
	cfg RunnerConfig,
	registry *llm.Registry,
	sessions SessionStore,
	tools *ToolRegistry,
	handoff *cache.Handoff,
	hm *hooks.Manager,
	log *logging.Logger,
) *Runner {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultWindowSize
	}
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	return &Runner{
		cfg:      cfg,
		client:   registry.Chain(append([]string{cfg.Model}, cfg.Fallbacks...)...),
		sessions: sessions,
		tools:    tools,
		handoff:  handoff,
		hooks:    hm,
		locks:    newSessionLocks(),
		log:      log.Sub("agent"),
	}
}

// Persona returns the persona the runner seeds new sessions with.
func (r *Runner) Persona() Persona { return r.cfg.Persona }

// Tools returns the tool definitions offered to the model.
func (r *Runner) Tools() []llm.ToolDefinition { return r.tools.Definitions() }

// Sessions lists the known session ids.
func (r *Runner) Sessions() []string { return r.sessions.List() }

// Session returns a copy of a session, or nil.
func (r *Runner) Session(id string) *domain.Session { return r.sessions.Get(id) }

// Run processes one turn. Turns of the same session run one at a time.
// A model failure aborts the turn; the user message stays recorded.
func (r *Runner) Run(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	sid := strings.TrimSpace(req.SessionID)
	if sid == "" {
		return nil, ErrMissingSessionID
	}

	unlock, err := r.locks.acquire(ctx, sid)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := r.log.Session(sid)
	r.hooks.Emit(ctx, hooks.EventTurnReceived, map[string]any{
		"sessionId": sid,
		"message":   req.Message,
	})

	seed := []domain.Message{{
		Role:      domain.RoleSystem,
		Content:   ComposeSystemPrompt(r.cfg.Persona, sid, req.Token),
		Timestamp: time.Now(),
	}}
	sess, created, err := r.sessions.GetOrCreate(sid, r.cfg.Persona.Name, seed)
	if err != nil {
		return nil, r.fail(ctx, sid, fmt.Errorf("loading session: %w", err))
	}
	if created {
		log.Info().Str("persona", r.cfg.Persona.Name).Msg("session created")
		r.hooks.Emit(ctx, hooks.EventSessionStart, map[string]any{
			"sessionId": sid,
			"persona":   r.cfg.Persona.Name,
		})
	}

	turn := sess.CurrentTurn() + 1
	userMsg := domain.Message{
		Role:      domain.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now(),
		Turn:      turn,
	}

	if created && r.cfg.Greeting && r.cfg.Persona.Greets() {
		return r.greet(ctx, sess, userMsg, start)
	}

	if err := r.sessions.Append(sid, userMsg); err != nil {
		return nil, r.fail(ctx, sid, fmt.Errorf("recording message: %w", err))
	}

	window := TrimWindow(r.sessions.History(sid), r.cfg.WindowSize)
	system := ""
	if len(window) > 0 && window[0].Role == domain.RoleSystem {
		system = window[0].Content
	}

	log.Info().
		Int("turn", turn).
		Int("window", len(window)).
		Msg("processing turn")

	// Slots left by an earlier turn that never collected them belong to
	// that turn.
	if err := r.handoff.Clear(ctx, sid); err != nil {
		log.Warn().Err(err).Msg("clearing stale handoff slots failed")
	}

	turnCtx := domain.WithTurn(ctx, domain.TurnContext{SessionID: sid, Token: req.Token, Turn: turn})
	msgs := toLLMMessages(window)
	defs := r.tools.Definitions()

	var (
		produced []domain.Message
		usage    llm.Usage
		final    *llm.CompletionResponse
	)
	for i := 0; i < r.cfg.MaxToolIterations; i++ {
		resp, err := r.complete(ctx, system, msgs, defs)
		if err != nil {
			return nil, r.fail(ctx, sid, err)
		}
		usage.Add(resp.Usage)
		final = resp

		if len(resp.ToolCalls) == 0 {
			break
		}

		log.Info().Int("turn", turn).Int("toolCalls", len(resp.ToolCalls)).Msg("executing tool calls")

		step := make([]domain.Message, 0, len(resp.ToolCalls)+1)
		step = append(step, domain.Message{
			Role:      domain.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: toDomainCalls(resp.ToolCalls),
			Timestamp: time.Now(),
			Turn:      turn,
		})
		step = append(step, r.executeToolCalls(turnCtx, sid, turn, resp.ToolCalls)...)

		if err := r.sessions.Append(sid, step...); err != nil {
			return nil, r.fail(ctx, sid, fmt.Errorf("recording tool results: %w", err))
		}
		produced = append(produced, step...)
		msgs = append(msgs, toLLMMessages(step)...)
	}

	// Out of tool rounds: ask once more without tools for a plain reply.
	if final != nil && len(final.ToolCalls) > 0 {
		log.Warn().Int("turn", turn).Msg("tool iteration limit reached")
		resp, err := r.complete(ctx, system, msgs, nil)
		if err != nil {
			return nil, r.fail(ctx, sid, err)
		}
		usage.Add(resp.Usage)
		final = resp
	}
	if final == nil {
		return nil, r.fail(ctx, sid, errors.New("no response from LLM"))
	}

	reply := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   strings.TrimSpace(final.Content),
		Timestamp: time.Now(),
		Turn:      turn,
	}
	if err := r.sessions.Append(sid, reply); err != nil {
		return nil, r.fail(ctx, sid, fmt.Errorf("recording reply: %w", err))
	}

	turnMsgs := make([]domain.Message, 0, len(window)+len(produced)+1)
	turnMsgs = append(turnMsgs, window...)
	turnMsgs = append(turnMsgs, produced...)
	turnMsgs = append(turnMsgs, reply)

	result := &TurnResult{
		SessionID: sid,
		Response:  reply.Content,
		Messages:  turnMsgs,
		Model:     final.Model,
		Usage:     usage,
	}
	r.collectHandoff(ctx, log, result, turn)
	result.Duration = time.Since(start)

	log.Info().
		Int("turn", turn).
		Str("model", result.Model).
		Int("inputTokens", usage.InputTokens).
		Int("outputTokens", usage.OutputTokens).
		Bool("places", result.PlacesTool != nil).
		Bool("partners", result.PartnerTool != nil).
		Dur("duration", result.Duration).
		Msg("turn completed")

	r.hooks.Emit(ctx, hooks.EventTurnCompleted, map[string]any{
		"sessionId":  sid,
		"turn":       turn,
		"model":      result.Model,
		"toolCalls":  countToolResults(produced),
		"durationMs": result.Duration.Milliseconds(),
	})
	return result, nil
}

// Reset removes a session and any handoff slots it left behind.
func (r *Runner) Reset(ctx context.Context, sessionID string) error {
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return ErrMissingSessionID
	}

	unlock, err := r.locks.acquire(ctx, sid)
	if err != nil {
		return err
	}
	defer unlock()

	err = errors.Join(r.sessions.Reset(sid), r.handoff.Clear(ctx, sid))
	if err != nil {
		r.log.Session(sid).Error().Err(err).Msg("session reset failed")
		return err
	}

	r.log.Session(sid).Info().Msg("session reset")
	r.hooks.Emit(ctx, hooks.EventSessionReset, map[string]any{"sessionId": sid})
	return nil
}

func (r *Runner) greet(ctx context.Context, sess *domain.Session, userMsg domain.Message, start time.Time) (*TurnResult, error) {
	greeting := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   r.cfg.Persona.Greeting(),
		Timestamp: time.Now(),
		Turn:      userMsg.Turn,
	}
	if err := r.sessions.Append(sess.ID, userMsg, greeting); err != nil {
		return nil, r.fail(ctx, sess.ID, fmt.Errorf("recording greeting: %w", err))
	}

	msgs := append(sess.Messages, userMsg, greeting)
	result := &TurnResult{
		SessionID: sess.ID,
		Response:  greeting.Content,
		Messages:  msgs,
		Greeting:  true,
		Duration:  time.Since(start),
	}

	r.log.Session(sess.ID).Info().Msg("new session greeted")
	r.hooks.Emit(ctx, hooks.EventTurnCompleted, map[string]any{
		"sessionId": sess.ID,
		"turn":      userMsg.Turn,
		"greeting":  true,
	})
	return result, nil
}

func (r *Runner) complete(ctx context.Context, system string, msgs []llm.Message, defs []llm.ToolDefinition) (*llm.CompletionResponse, error) {
	resp, err := r.client.Complete(ctx, llm.CompletionRequest{
		System:      system,
		Messages:    msgs,
		Tools:       defs,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		TopP:        r.cfg.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM completion: %w", err)
	}
	return resp, nil
}

// executeToolCalls runs one model step's tool calls concurrently. Results
// keep the order of calls. Tool failures become result text.
func (r *Runner) executeToolCalls(ctx context.Context, sid string, turn int, calls []llm.ToolCall) []domain.Message {
	log := r.log.Session(sid)
	return iter.Map(calls, func(c *llm.ToolCall) domain.Message {
		start := time.Now()
		out, err := r.tools.Execute(ctx, c.Name, c.Input)
		if err != nil {
			out = "Error: " + err.Error()
		}
		elapsed := time.Since(start)

		ev := log.Debug()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("tool", c.Name).Int("turn", turn).Dur("duration", elapsed).Msg("tool executed")

		r.hooks.Emit(ctx, hooks.EventToolExecuted, map[string]any{
			"sessionId":  sid,
			"turn":       turn,
			"tool":       c.Name,
			"callId":     c.ID,
			"failed":     err != nil,
			"durationMs": elapsed.Milliseconds(),
		})

		return domain.Message{
			Role:       domain.RoleTool,
			Content:    out,
			Timestamp:  time.Now(),
			ToolCallID: c.ID,
			ToolName:   c.Name,
			Turn:       turn,
		}
	})
}

// collectHandoff finds the tool results of this turn and consumes the
// handoff slots of the searches that ran.
func (r *Runner) collectHandoff(ctx context.Context, log *logging.Logger, res *TurnResult, turn int) {
	res.PlacesTool, res.PartnerTool = turnToolResults(res.Messages, turn)

	if res.PlacesTool != nil {
		raw, err := r.handoff.TakePlaces(ctx, res.SessionID)
		if err != nil {
			log.Warn().Err(err).Msg("reading places slot failed")
		}
		res.Places = decodeSlot(log, raw, "places")

		query, err := r.handoff.TakeQuery(ctx, res.SessionID)
		if err != nil {
			log.Warn().Err(err).Msg("reading query slot failed")
		}
		res.PlacesQuery = query
	}

	if res.PartnerTool != nil {
		raw, err := r.handoff.TakePartners(ctx, res.SessionID)
		if err != nil {
			log.Warn().Err(err).Msg("reading partner slot failed")
		}
		res.Partners = decodeSlot(log, raw, "partners")
	}
}

// turnToolResults returns the latest places and partner search results
// found after the last user message and tagged with turn.
func turnToolResults(msgs []domain.Message, turn int) (places, partner *domain.Message) {
	lastUser := -1
	for i, m := range msgs {
		if m.Role == domain.RoleUser {
			lastUser = i
		}
	}

	for i := lastUser + 1; i < len(msgs); i++ {
		m := msgs[i]
		if m.Role != domain.RoleTool || m.Turn != turn {
			continue
		}
		switch {
		case m.ToolName == domain.ToolPlaces:
			places = &msgs[i]
		case domain.IsPartnerTool(m.ToolName):
			partner = &msgs[i]
		}
	}
	return places, partner
}

func decodeSlot(log *logging.Logger, raw []byte, slot string) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	if !json.Valid(raw) {
		log.Warn().Str("slot", slot).Msg("discarding malformed handoff payload")
		return nil
	}
	return json.RawMessage(raw)
}

func (r *Runner) fail(ctx context.Context, sid string, err error) error {
	r.log.Session(sid).Error().Err(err).Msg("turn failed")
	r.hooks.Emit(ctx, hooks.EventTurnFailed, map[string]any{
		"sessionId": sid,
		"error":     err.Error(),
	})
	return err
}

func countToolResults(msgs []domain.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Role == domain.RoleTool {
			n++
		}
	}
	return n
}
