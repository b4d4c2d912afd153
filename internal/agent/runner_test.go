package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/domain"
	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/llm"
	"github.com/soyeahso/gaia/internal/logging"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func testRegistry(mock llm.Client) *llm.Registry {
	reg := llm.NewRegistry(silentLog())
	reg.Add(llm.Provider{Name: "mock", Client: mock})
	return reg
}

// slotTool writes a handoff slot for the calling session, like the real
// search tools do.
type slotTool struct {
	name    string
	schema  string
	output  string
	handoff *cache.Handoff
	failing atomic.Bool
	calls   atomic.Int32
}

func (s *slotTool) Name() string        { return s.name }
func (s *slotTool) Description() string { return "test tool " + s.name }
func (s *slotTool) InputSchema() string { return s.schema }

func (s *slotTool) Execute(ctx context.Context, input string) (string, error) {
	s.calls.Add(1)
	tc, ok := domain.TurnFromContext(ctx)
	if !ok {
		return "", errors.New("missing turn context")
	}
	if s.failing.Load() {
		return "Error en la solicitud: 500 - upstream down", nil
	}
	switch {
	case s.name == domain.ToolPlaces:
		if err := s.handoff.PutPlaces(ctx, tc.SessionID, []byte(`[{"id":"p1","displayName":{"text":"Bar Uno"}}]`), "bares en Madrid"); err != nil {
			return "", err
		}
	case domain.IsPartnerTool(s.name):
		if err := s.handoff.PutPartners(ctx, tc.SessionID, []byte(`[{"name":"La Terraza"}]`)); err != nil {
			return "", err
		}
	}
	return s.output, nil
}

type fixture struct {
	runner   *Runner
	sessions *MemorySessionStore
	handoff  *cache.Handoff
	places   *slotTool
	partner  *slotTool
	city     *slotTool
}

func newFixture(t *testing.T, mock *llm.MockClient, mutate func(*RunnerConfig)) *fixture {
	t.Helper()
	handoff := cache.NewHandoff(cache.NewMemoryStore(100), time.Hour)
	f := &fixture{
		sessions: NewMemorySessionStore(),
		handoff:  handoff,
		places:   &slotTool{name: domain.ToolPlaces, output: `["Bar Uno"]`, handoff: handoff},
		partner:  &slotTool{name: domain.ToolPartner, output: `["La Terraza"]`, handoff: handoff},
		city: &slotTool{
			name:    domain.ToolCityCheck,
			schema:  `{"type":"object","properties":{"city":{"type":"string"}},"required":["city"]}`,
			output:  `{"matched":true}`,
			handoff: handoff,
		},
	}

	tools := NewToolRegistry()
	for _, tool := range []Tool{f.places, f.partner, f.city} {
		require.NoError(t, tools.Register(tool))
	}

	cfg := RunnerConfig{
		Model:       "mock",
		Persona:     Persona{Name: "test", Template: "sid={session_id} token={token}"},
		Temperature: llm.Float(0.4),
		TopP:        llm.Float(0.85),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.runner = NewRunner(cfg, testRegistry(mock), f.sessions, tools, handoff, nil, silentLog())
	return f
}

func toolCallResponse(calls ...llm.ToolCall) *llm.CompletionResponse {
	return &llm.CompletionResponse{ToolCalls: calls, StopReason: llm.StopReasonToolUse, Model: "mock-model"}
}

func textResponse(text string) *llm.CompletionResponse {
	return &llm.CompletionResponse{
		Content:    text,
		StopReason: llm.StopReasonEnd,
		Model:      "mock-model",
		Usage:      llm.Usage{InputTokens: 20, OutputTokens: 10},
	}
}

func TestRunnerPlainReply(t *testing.T) {
	var seen []llm.CompletionRequest
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(&seen, textResponse("¡Hola! ¿En qué ciudad?"))}
	f := newFixture(t, mock, nil)

	res, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "quiero salir", Token: "jwt"})
	require.NoError(t, err)

	assert.Equal(t, "¡Hola! ¿En qué ciudad?", res.Response)
	assert.Equal(t, "mock-model", res.Model)
	assert.Equal(t, 20, res.Usage.InputTokens)
	assert.Nil(t, res.Places)
	assert.Nil(t, res.Partners)
	assert.Nil(t, res.PlacesTool)
	assert.Nil(t, res.PartnerTool)
	assert.False(t, res.Greeting)

	require.Len(t, seen, 1)
	req := seen[0]
	assert.Equal(t, "sid=s1 token=jwt", req.System)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, llm.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "quiero salir", req.Messages[0].Content)
	assert.Len(t, req.Tools, 3)
	assert.Equal(t, 0.4, *req.Temperature)
	assert.Equal(t, 0.85, *req.TopP)
	assert.Empty(t, req.Model, "provider references use the provider's own model")

	history := f.sessions.History("s1")
	require.Len(t, history, 3)
	assert.Equal(t, domain.RoleSystem, history[0].Role)
	assert.Equal(t, domain.RoleUser, history[1].Role)
	assert.Equal(t, 1, history[1].Turn)
	assert.Equal(t, domain.RoleAssistant, history[2].Role)
	assert.Equal(t, res.Messages, history)
}

func TestRunnerSystemPromptSeededOnce(t *testing.T) {
	var seen []llm.CompletionRequest
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(&seen, textResponse("ok"))}
	f := newFixture(t, mock, nil)

	_, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "uno", Token: "first"})
	require.NoError(t, err)
	_, err = f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "dos", Token: "second"})
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "sid=s1 token=first", seen[1].System)

	systems := 0
	for _, m := range f.sessions.History("s1") {
		if m.Role == domain.RoleSystem {
			systems++
		}
	}
	assert.Equal(t, 1, systems)
}

func TestRunnerPlacesHandoff(t *testing.T) {
	var seen []llm.CompletionRequest
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(&seen,
		toolCallResponse(llm.ToolCall{ID: "c1", Name: domain.ToolPlaces, Input: `{"query":"bares en Madrid"}`}),
		textResponse("Te recomiendo Bar Uno"),
	)}
	f := newFixture(t, mock, nil)

	res, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "bares en Madrid", Token: "jwt"})
	require.NoError(t, err)

	assert.Equal(t, "Te recomiendo Bar Uno", res.Response)
	assert.JSONEq(t, `[{"id":"p1","displayName":{"text":"Bar Uno"}}]`, string(res.Places))
	assert.Equal(t, "bares en Madrid", res.PlacesQuery)
	require.NotNil(t, res.PlacesTool)
	assert.Equal(t, `["Bar Uno"]`, res.PlacesTool.Content)
	assert.Equal(t, "c1", res.PlacesTool.ToolCallID)
	assert.Nil(t, res.PartnerTool)
	assert.Nil(t, res.Partners)

	require.Len(t, seen, 2)
	second := seen[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, llm.RoleAssistant, second[1].Role)
	require.Len(t, second[1].ToolCalls, 1)
	assert.Equal(t, llm.RoleTool, second[2].Role)
	assert.Equal(t, "c1", second[2].ToolCallID)
	assert.Equal(t, domain.ToolPlaces, second[2].Name)

	slot, err := f.handoff.TakePlaces(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, slot, "the slot is consumed by the turn")

	history := f.sessions.History("s1")
	require.Len(t, history, 5)
	assert.Equal(t, domain.RoleTool, history[3].Role)
	assert.Equal(t, 1, history[3].Turn)
}

func TestRunnerParallelToolCallsKeepOrder(t *testing.T) {
	var seen []llm.CompletionRequest
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(&seen,
		toolCallResponse(
			llm.ToolCall{ID: "c1", Name: domain.ToolPartner, Input: `{}`},
			llm.ToolCall{ID: "c2", Name: domain.ToolPlaces, Input: `{}`},
			llm.ToolCall{ID: "c3", Name: domain.ToolCityCheck, Input: `{"city":"Quito"}`},
		),
		textResponse("listo"),
	)}
	f := newFixture(t, mock, nil)

	res, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "planes en Quito"})
	require.NoError(t, err)

	var toolIDs []string
	for _, m := range res.Messages {
		if m.Role == domain.RoleTool {
			toolIDs = append(toolIDs, m.ToolCallID)
		}
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, toolIDs)
	assert.NotNil(t, res.Places)
	assert.JSONEq(t, `[{"name":"La Terraza"}]`, string(res.Partners))
	require.NotNil(t, res.PartnerTool)
	assert.Equal(t, domain.ToolPartner, res.PartnerTool.ToolName)
}

func TestRunnerStaleSlotIsNotReported(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(nil,
		toolCallResponse(llm.ToolCall{ID: "c1", Name: domain.ToolPlaces, Input: `{}`}),
		textResponse("solo places"),
	)}
	f := newFixture(t, mock, nil)

	ctx := context.Background()
	require.NoError(t, f.handoff.PutPartners(ctx, "s1", []byte(`[{"name":"Viejo"}]`)))

	res, err := f.runner.Run(ctx, TurnRequest{SessionID: "s1", Message: "bares"})
	require.NoError(t, err)
	assert.NotNil(t, res.Places)
	assert.Nil(t, res.Partners)
	assert.Nil(t, res.PartnerTool)

	stale, err := f.handoff.TakePartners(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, stale, "slots left before the turn are dropped")
}

func TestRunnerAbortedTurnSlotNotReportedLater(t *testing.T) {
	calls := 0
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			switch calls {
			case 1:
				return toolCallResponse(llm.ToolCall{ID: "c1", Name: domain.ToolPlaces, Input: `{}`}), nil
			case 2:
				return nil, &llm.ProviderError{Provider: "mock", Message: "invalid request", Code: 400}
			case 3:
				return toolCallResponse(llm.ToolCall{ID: "c2", Name: domain.ToolPlaces, Input: `{}`}), nil
			default:
				return textResponse("no encontré nada"), nil
			}
		},
	}
	f := newFixture(t, mock, nil)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, TurnRequest{SessionID: "s1", Message: "bares"})
	require.Error(t, err)

	f.places.failing.Store(true)
	res, err := f.runner.Run(ctx, TurnRequest{SessionID: "s1", Message: "bares otra vez"})
	require.NoError(t, err)

	require.NotNil(t, res.PlacesTool)
	assert.Contains(t, res.PlacesTool.Content, "Error en la solicitud: 500")
	assert.Equal(t, 2, res.PlacesTool.Turn)
	assert.Nil(t, res.Places)
	assert.Empty(t, res.PlacesQuery)
	assert.Equal(t, int32(2), f.places.calls.Load())
}

func TestRunnerPreviousTurnToolsAreNotReported(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(nil,
		toolCallResponse(llm.ToolCall{ID: "c1", Name: domain.ToolPlaces, Input: `{}`}),
		textResponse("primera"),
		textResponse("segunda"),
	)}
	f := newFixture(t, mock, nil)

	ctx := context.Background()
	first, err := f.runner.Run(ctx, TurnRequest{SessionID: "s1", Message: "bares"})
	require.NoError(t, err)
	assert.NotNil(t, first.PlacesTool)

	second, err := f.runner.Run(ctx, TurnRequest{SessionID: "s1", Message: "gracias"})
	require.NoError(t, err)
	assert.Equal(t, "segunda", second.Response)
	assert.Nil(t, second.PlacesTool)
	assert.Nil(t, second.Places)
	for _, m := range second.Messages {
		assert.NotEqual(t, domain.RoleTool, m.Role, "earlier tool traffic stays out of the window")
	}
}

func TestRunnerWindowTrimming(t *testing.T) {
	var seen []llm.CompletionRequest
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(&seen, textResponse("ok"))}
	f := newFixture(t, mock, nil)

	for i := 1; i <= 5; i++ {
		_, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: fmt.Sprintf("turno %d", i)})
		require.NoError(t, err)
	}

	last := seen[len(seen)-1]
	require.Len(t, last.Messages, DefaultWindowSize)
	assert.Equal(t, llm.RoleAssistant, last.Messages[0].Role)
	assert.Equal(t, "turno 3", last.Messages[1].Content)
	assert.Equal(t, "turno 5", last.Messages[len(last.Messages)-1].Content)
	assert.Len(t, f.sessions.History("s1"), 11)
}

func TestRunnerModelErrorKeepsUserMessage(t *testing.T) {
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			return nil, &llm.ProviderError{Provider: "mock", Message: "invalid request", Code: 400}
		},
	}
	f := newFixture(t, mock, nil)

	_, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "hola"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM completion")

	history := f.sessions.History("s1")
	require.Len(t, history, 2)
	assert.Equal(t, domain.RoleUser, history[1].Role)
}

func TestRunnerToolErrorsBecomeResults(t *testing.T) {
	var seen []llm.CompletionRequest
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(&seen,
		toolCallResponse(
			llm.ToolCall{ID: "c1", Name: "nope", Input: `{}`},
			llm.ToolCall{ID: "c2", Name: domain.ToolCityCheck, Input: `{"ciudad":"Quito"}`},
		),
		textResponse("Error técnico"),
	)}
	f := newFixture(t, mock, nil)

	res, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "Error técnico", res.Response)

	tools := seen[1].Messages[2:]
	require.Len(t, tools, 2)
	assert.Equal(t, "Error: unknown tool: nope", tools[0].Content)
	assert.Contains(t, tools[1].Content, "Error: invalid tool input")
	assert.Equal(t, int32(0), f.city.calls.Load())
}

func TestRunnerToolIterationLimit(t *testing.T) {
	var calls atomic.Int32
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls.Add(1)
			if len(req.Tools) == 0 {
				return textResponse("final"), nil
			}
			return toolCallResponse(llm.ToolCall{ID: "c", Name: domain.ToolCityCheck, Input: `{"city":"Cali"}`}), nil
		},
	}
	f := newFixture(t, mock, func(cfg *RunnerConfig) { cfg.MaxToolIterations = 2 })

	res, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "final", res.Response)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(2), f.city.calls.Load())
}

func TestRunnerGreeting(t *testing.T) {
	var modelCalls atomic.Int32
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			modelCalls.Add(1)
			return textResponse("respuesta"), nil
		},
	}
	persona := Persona{Name: "greeter", Template: "prompt {session_id}", Greetings: []string{"¡Hola!", "¡Buenas!"}}
	f := newFixture(t, mock, func(cfg *RunnerConfig) {
		cfg.Persona = persona
		cfg.Greeting = true
	})

	res, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "hola"})
	require.NoError(t, err)
	assert.True(t, res.Greeting)
	assert.Contains(t, persona.Greetings, res.Response)
	assert.Equal(t, int32(0), modelCalls.Load())
	require.Len(t, res.Messages, 3)

	res, err = f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "bares"})
	require.NoError(t, err)
	assert.False(t, res.Greeting)
	assert.Equal(t, "respuesta", res.Response)
	assert.Equal(t, int32(1), modelCalls.Load())
}

func TestRunnerGreetingDisabled(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(nil, textResponse("modelo"))}
	f := newFixture(t, mock, func(cfg *RunnerConfig) {
		cfg.Persona = Persona{Name: "greeter", Template: "x", Greetings: []string{"¡Hola!"}}
	})

	res, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "modelo", res.Response)
}

func TestRunnerReset(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(nil, textResponse("ok"))}
	f := newFixture(t, mock, nil)
	ctx := context.Background()

	_, err := f.runner.Run(ctx, TurnRequest{SessionID: "s1", Message: "hola"})
	require.NoError(t, err)
	require.NoError(t, f.handoff.PutPlaces(ctx, "s1", []byte(`[]`), "q"))

	require.NoError(t, f.runner.Reset(ctx, "s1"))
	assert.Nil(t, f.sessions.Get("s1"))
	slot, err := f.handoff.TakePlaces(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, slot)

	require.NoError(t, f.runner.Reset(ctx, "s1"), "reset is idempotent")
	require.NoError(t, f.runner.Reset(ctx, "never-seen"))

	res, err := f.runner.Run(ctx, TurnRequest{SessionID: "s1", Message: "otra vez"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Messages[1].Turn, "a reset session starts over")
}

func TestRunnerMissingSessionID(t *testing.T) {
	f := newFixture(t, &llm.MockClient{ProviderName: "mock"}, nil)

	_, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "  ", Message: "hola"})
	assert.ErrorIs(t, err, ErrMissingSessionID)
	assert.ErrorIs(t, f.runner.Reset(context.Background(), ""), ErrMissingSessionID)
}

func TestRunnerSerializesSessionTurns(t *testing.T) {
	var inflight, maxInflight atomic.Int32
	mock := &llm.MockClient{
		ProviderName: "mock",
		CompleteFunc: func(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
			n := inflight.Add(1)
			for {
				m := maxInflight.Load()
				if n <= m || maxInflight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
			return textResponse("ok"), nil
		},
	}
	f := newFixture(t, mock, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "shared", Message: fmt.Sprintf("m%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInflight.Load())
	assert.Len(t, f.sessions.History("shared"), 9)
	assert.Equal(t, 0, f.runner.locks.size())
}

func TestRunnerHooks(t *testing.T) {
	mock := &llm.MockClient{ProviderName: "mock", CompleteFunc: llm.Script(nil,
		toolCallResponse(llm.ToolCall{ID: "c1", Name: domain.ToolCityCheck, Input: `{"city":"Quito"}`}),
		textResponse("ok"),
	)}
	f := newFixture(t, mock, nil)

	hm := hooks.NewManager(silentLog())
	var mu sync.Mutex
	var events []string
	hm.OnAll("recorder", func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, p.Event)
		return nil
	})
	f.runner.hooks = hm

	_, err := f.runner.Run(context.Background(), TurnRequest{SessionID: "s1", Message: "hola"})
	require.NoError(t, err)
	require.NoError(t, f.runner.Reset(context.Background(), "s1"))

	assert.Equal(t, []string{
		hooks.EventTurnReceived,
		hooks.EventSessionStart,
		hooks.EventToolExecuted,
		hooks.EventTurnCompleted,
		hooks.EventSessionReset,
	}, events)
}

func TestTurnToolResults(t *testing.T) {
	msgs := []domain.Message{
		{Role: domain.RoleSystem},
		{Role: domain.RoleUser, Turn: 1},
		{Role: domain.RoleTool, ToolName: domain.ToolPlaces, Turn: 1},
		{Role: domain.RoleAssistant, Turn: 1},
		{Role: domain.RoleUser, Turn: 2},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "a"}}, Turn: 2},
		{Role: domain.RoleTool, ToolName: domain.ToolPlaces, Turn: 1, Content: "mistagged"},
		{Role: domain.RoleTool, ToolName: domain.ToolPartner, Turn: 2, Content: "coords"},
		{Role: domain.RoleTool, ToolName: domain.ToolPartnerCity, Turn: 2, Content: "city"},
		{Role: domain.RoleTool, ToolName: domain.ToolCityCheck, Turn: 2},
	}

	places, partner := turnToolResults(msgs, 2)
	assert.Nil(t, places)
	require.NotNil(t, partner)
	assert.Equal(t, "city", partner.Content, "the latest partner search wins")

	places, partner = turnToolResults(msgs[:4], 1)
	assert.NotNil(t, places)
	assert.Nil(t, partner)
}

func TestDecodeSlot(t *testing.T) {
	assert.Nil(t, decodeSlot(silentLog(), nil, "places"))
	assert.Nil(t, decodeSlot(silentLog(), []byte("{broken"), "places"))
	assert.JSONEq(t, `[1,2]`, string(decodeSlot(silentLog(), []byte(`[1,2]`), "places")))
}

func TestSessionLocksCancel(t *testing.T) {
	locks := newSessionLocks()
	unlock, err := locks.acquire(context.Background(), "s1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.acquire(ctx, "s1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, locks.size())
}
