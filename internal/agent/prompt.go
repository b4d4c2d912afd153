package agent

import (
	"embed"
	"fmt"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

//go:embed personas
var personaFS embed.FS

// DefaultPersona is used when no persona is configured.
const DefaultPersona = "gaia"

const (
	templateExt = ".md"
	greetingExt = ".greetings"
)

// Persona is a system prompt template plus the canned greetings a new
// session may receive. Templates reference {session_id} and {token}.
type Persona struct {
	Name      string
	Template  string
	Greetings []string
}

// Greets reports whether the persona opens new sessions with a greeting.
func (p Persona) Greets() bool { return len(p.Greetings) > 0 }

// Greeting picks one of the persona's greetings at random.
func (p Persona) Greeting() string {
	if len(p.Greetings) == 0 {
		return ""
	}
	return p.Greetings[rand.IntN(len(p.Greetings))]
}

// ComposeSystemPrompt renders the persona's template for one session. The
// session id and partner token are embedded verbatim.
func ComposeSystemPrompt(p Persona, sessionID, token string) string {
	r := strings.NewReplacer("{session_id}", sessionID, "{token}", token)
	return r.Replace(p.Template)
}

// PersonaLibrary holds the personas available to the runner.
type PersonaLibrary struct {
	personas map[string]Persona
}

// LoadPersonas returns the built-in personas plus, when file is set, the
// template at that path. A custom persona is named after its file (without
// extension) and reads greetings from a sibling "<name>.greetings" file.
func LoadPersonas(file string) (*PersonaLibrary, error) {
	lib := &PersonaLibrary{personas: make(map[string]Persona)}

	entries, err := personaFS.ReadDir("personas")
	if err != nil {
		return nil, fmt.Errorf("reading built-in personas: %w", err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), templateExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), templateExt)
		tmpl, err := personaFS.ReadFile(path.Join("personas", e.Name()))
		if err != nil {
			return nil, err
		}
		greetings, _ := personaFS.ReadFile(path.Join("personas", name+greetingExt))
		lib.add(name, string(tmpl), string(greetings))
	}

	if file != "" {
		tmpl, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading persona file: %w", err)
		}
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		greetingsFile := filepath.Join(filepath.Dir(file), name+greetingExt)
		greetings, err := os.ReadFile(greetingsFile)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading persona greetings: %w", err)
		}
		lib.add(name, string(tmpl), string(greetings))
	}
	return lib, nil
}

func (l *PersonaLibrary) add(name, tmpl, greetings string) {
	p := Persona{Name: name, Template: strings.TrimSpace(tmpl) + "\n"}
	for _, line := range strings.Split(greetings, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			p.Greetings = append(p.Greetings, line)
		}
	}
	l.personas[name] = p
}

// Get returns a persona by name.
func (l *PersonaLibrary) Get(name string) (Persona, bool) {
	p, ok := l.personas[name]
	return p, ok
}

// Names returns the persona names, sorted.
func (l *PersonaLibrary) Names() []string {
	names := make([]string, 0, len(l.personas))
	for name := range l.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
