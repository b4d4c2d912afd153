package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrKeyNotFound is returned when a dotted key has no value in the file.
var ErrKeyNotFound = errors.New("key not found")

// sections are the top-level keys of Config.
var sections = []string{
	"development", "gateway", "models", "agent", "tools",
	"cache", "session", "logging", "events",
}

// Raw is the config file as a generic YAML document, addressed by dotted
// keys such as "cache.redis.addr". Editing through Raw keeps keys the
// typed Config does not know about.
type Raw map[string]any

// LoadRaw reads the config file. A missing file is an empty document.
func LoadRaw(path string) (Raw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Raw{}, nil
		}
		return nil, err
	}

	// Decoding into Raw would make yaml type every nested mapping as Raw.
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return Raw(doc), nil
}

// section returns v as a mapping.
func section(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Raw:
		return map[string]any(m), true
	}
	return nil, false
}

// Save writes the document to path, creating its directory.
func (r Raw) Save(path string) error {
	data, err := yaml.Marshal(map[string]any(r))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Decode converts the document into a Config with defaults applied.
func (r Raw) Decode() (Config, error) {
	var cfg Config
	data, err := yaml.Marshal(map[string]any(r))
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "config does not match schema: " + err.Error()}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Get returns the value at key.
func (r Raw) Get(key string) (any, error) {
	path, err := SplitKey(key)
	if err != nil {
		return nil, err
	}
	var cur any = map[string]any(r)
	for _, seg := range path {
		m, ok := section(cur)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		if cur, ok = m[seg]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
	}
	return cur, nil
}

// Set stores value at key, replacing scalars that sit where a section is
// needed.
func (r Raw) Set(key string, value any) error {
	path, err := SplitKey(key)
	if err != nil {
		return err
	}
	cur := map[string]any(r)
	for _, seg := range path[:len(path)-1] {
		next, ok := section(cur[seg])
		if !ok {
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
	return nil
}

// Unset removes the value at key. Sibling keys are kept.
func (r Raw) Unset(key string) error {
	path, err := SplitKey(key)
	if err != nil {
		return err
	}
	cur := map[string]any(r)
	for _, seg := range path[:len(path)-1] {
		next, ok := section(cur[seg])
		if !ok {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		cur = next
	}
	last := path[len(path)-1]
	if _, ok := cur[last]; !ok {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	delete(cur, last)
	return nil
}

// SplitKey splits a dotted key into segments. The first segment must be a
// config section.
func SplitKey(key string) ([]string, error) {
	if key == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	parts := strings.Split(key, ".")
	if slices.Contains(parts, "") {
		return nil, &ConfigError{Message: fmt.Sprintf("config key %q contains an empty segment", key)}
	}
	if !slices.Contains(sections, parts[0]) {
		return nil, &ConfigError{Message: fmt.Sprintf("unknown config section %q (want one of %s)", parts[0], strings.Join(sections, ", "))}
	}
	return parts, nil
}
