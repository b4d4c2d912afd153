package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeSystemPrompt(t *testing.T) {
	p := Persona{Template: "id={session_id} tok={token} again={session_id}"}
	assert.Equal(t, "id=abc tok=xyz again=abc", ComposeSystemPrompt(p, "abc", "xyz"))
	assert.Equal(t, "id= tok= again=", ComposeSystemPrompt(p, "", ""))
}

func TestBuiltinPersonas(t *testing.T) {
	lib, err := LoadPersonas("")
	require.NoError(t, err)
	assert.Equal(t, []string{"concierge", "gaia"}, lib.Names())

	gaia, ok := lib.Get(DefaultPersona)
	require.True(t, ok)
	assert.True(t, gaia.Greets())
	assert.Len(t, gaia.Greetings, 10)
	assert.Contains(t, gaia.Greetings, "¡Hola hola! ¿Listo/a para descubrir planes chulos hoy?")

	prompt := ComposeSystemPrompt(gaia, "sess-42", "tok-7")
	assert.Contains(t, prompt, "sess-42")
	assert.Contains(t, prompt, "tok-7")
	assert.NotContains(t, prompt, "{session_id}")
	assert.NotContains(t, prompt, "{token}")

	concierge, ok := lib.Get("concierge")
	require.True(t, ok)
	assert.False(t, concierge.Greets())
	assert.Empty(t, concierge.Greeting())
	assert.Contains(t, ComposeSystemPrompt(concierge, "s", "t"), "session_id: s")

	_, ok = lib.Get("nope")
	assert.False(t, ok)
}

func TestPersonaGreeting(t *testing.T) {
	p := Persona{Greetings: []string{"a", "b", "c"}}
	for i := 0; i < 20; i++ {
		assert.Contains(t, p.Greetings, p.Greeting())
	}
}

func TestLoadPersonasFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "nocturna.md")
	require.NoError(t, os.WriteFile(file, []byte("Hola {session_id}\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nocturna.greetings"), []byte("¡Buenas noches!\n\n¿Salimos?\n"), 0o600))

	lib, err := LoadPersonas(file)
	require.NoError(t, err)

	p, ok := lib.Get("nocturna")
	require.True(t, ok)
	assert.Equal(t, "Hola s1", strings.TrimSpace(ComposeSystemPrompt(p, "s1", "")))
	assert.Equal(t, []string{"¡Buenas noches!", "¿Salimos?"}, p.Greetings)
	assert.Len(t, lib.Names(), 3)
}

func TestLoadPersonasWithoutGreetings(t *testing.T) {
	file := filepath.Join(t.TempDir(), "seca.txt")
	require.NoError(t, os.WriteFile(file, []byte("prompt"), 0o600))

	lib, err := LoadPersonas(file)
	require.NoError(t, err)
	p, ok := lib.Get("seca")
	require.True(t, ok)
	assert.False(t, p.Greets())
}

func TestLoadPersonasMissingFile(t *testing.T) {
	_, err := LoadPersonas(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
