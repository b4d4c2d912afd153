package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/gaia/internal/domain"
)

func seed() []domain.Message {
	return []domain.Message{{Role: domain.RoleSystem, Content: "prompt"}}
}

func TestMemorySessionStoreGetOrCreate(t *testing.T) {
	store := NewMemorySessionStore()

	s1, created, err := store.GetOrCreate("abc", "gaia", seed())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "abc", s1.ID)
	assert.Equal(t, "gaia", s1.Persona)
	require.Len(t, s1.Messages, 1)

	s2, created, err := store.GetOrCreate("abc", "gaia", []domain.Message{{Role: domain.RoleSystem, Content: "other"}})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "prompt", s2.Messages[0].Content, "seed only applies on creation")
}

func TestMemorySessionStoreAppendAndHistory(t *testing.T) {
	store := NewMemorySessionStore()
	_, _, err := store.GetOrCreate("abc", "gaia", seed())
	require.NoError(t, err)

	require.NoError(t, store.Append("abc",
		domain.Message{Role: domain.RoleUser, Content: "hola", Timestamp: time.Now()},
		domain.Message{Role: domain.RoleAssistant, Content: "¿Qué tal?", Timestamp: time.Now()},
	))

	history := store.History("abc")
	require.Len(t, history, 3)
	assert.Equal(t, domain.RoleUser, history[1].Role)
	assert.Equal(t, "¿Qué tal?", history[2].Content)

	history[1].Content = "mutated"
	assert.Equal(t, "hola", store.History("abc")[1].Content, "history is a copy")

	got := store.Get("abc")
	got.Messages[0].Content = "mutated"
	assert.Equal(t, "prompt", store.Get("abc").Messages[0].Content, "sessions are copies")
}

func TestMemorySessionStoreAppendUnknown(t *testing.T) {
	store := NewMemorySessionStore()
	err := store.Append("missing", domain.Message{Role: domain.RoleUser})

	var notFound *SessionNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.ID)
	assert.Nil(t, store.History("missing"))
	assert.Nil(t, store.Get("missing"))
}

func TestMemorySessionStoreReset(t *testing.T) {
	store := NewMemorySessionStore()
	_, _, _ = store.GetOrCreate("abc", "gaia", seed())

	require.NoError(t, store.Reset("abc"))
	assert.Nil(t, store.Get("abc"))
	require.NoError(t, store.Reset("abc"))

	_, created, err := store.GetOrCreate("abc", "gaia", seed())
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMemorySessionStoreList(t *testing.T) {
	store := NewMemorySessionStore()
	_, _, _ = store.GetOrCreate("a", "gaia", seed())
	_, _, _ = store.GetOrCreate("b", "gaia", seed())
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Append("a", domain.Message{Role: domain.RoleUser, Content: "x"}))

	assert.Equal(t, []string{"a", "b"}, store.List())
}

func TestTrimWindow(t *testing.T) {
	sys := domain.Message{Role: domain.RoleSystem, Content: "sys"}
	user := func(s string) domain.Message { return domain.Message{Role: domain.RoleUser, Content: s} }
	reply := func(s string) domain.Message { return domain.Message{Role: domain.RoleAssistant, Content: s} }
	call := domain.Message{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c"}}}
	result := domain.Message{Role: domain.RoleTool, Content: "[]"}

	tests := []struct {
		name    string
		history []domain.Message
		n       int
		want    []string
	}{
		{"empty", nil, 6, nil},
		{"system only", []domain.Message{sys}, 6, []string{"sys"}},
		{"short", []domain.Message{sys, user("u1")}, 6, []string{"sys", "u1"}},
		{"drops tool traffic", []domain.Message{sys, user("u1"), call, result, reply("a1")}, 6, []string{"sys", "u1", "a1"}},
		{"keeps last n", []domain.Message{sys, user("u1"), reply("a1"), user("u2"), reply("a2"), user("u3")}, 3, []string{"sys", "u2", "a2", "u3"}},
		{"no system", []domain.Message{user("u1"), reply("a1")}, 1, []string{"a1"}},
		{"default size", []domain.Message{sys, user("1"), reply("2"), user("3"), reply("4"), user("5"), reply("6"), user("7")}, 0, []string{"sys", "2", "3", "4", "5", "6", "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TrimWindow(tt.history, tt.n)
			var contents []string
			for _, m := range got {
				contents = append(contents, m.Content)
			}
			assert.Equal(t, tt.want, contents)
			assert.LessOrEqual(t, len(got), max(tt.n, DefaultWindowSize)+1)
		})
	}
}

func TestToLLMMessages(t *testing.T) {
	msgs := toLLMMessages([]domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "hola"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "t", Input: `{}`}}},
		{Role: domain.RoleTool, Content: "[]", ToolCallID: "c1", ToolName: "t"},
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, "user", msgs[0].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "c1", msgs[1].ToolCalls[0].ID)
	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "c1", msgs[2].ToolCallID)
	assert.Equal(t, "t", msgs[2].Name)
}
