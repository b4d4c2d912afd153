package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must be one of %v, got %q", valid, value),
			})
		}
	}
	positive := func(path string, v int) {
		if v < 0 {
			issues = append(issues, ValidationIssue{
				Path:    path,
				Message: fmt.Sprintf("must be positive, got %d", v),
			})
		}
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	oneOf("gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	// Model validation
	validKinds := []string{"openai", "gemini", "ollama"}
	for name, p := range cfg.Models.Providers {
		path := "models.providers." + name
		if !slices.Contains(validKinds, p.Kind) {
			issues = append(issues, ValidationIssue{
				Path:    path + ".kind",
				Message: fmt.Sprintf("must be one of %v, got %q", validKinds, p.Kind),
			})
		}
		if p.Kind == "ollama" && p.Model == "" {
			issues = append(issues, ValidationIssue{Path: path + ".model", Message: "required for ollama"})
		}
	}
	for _, name := range append([]string{cfg.Models.Primary}, cfg.Models.Fallbacks...) {
		if name == "" {
			continue
		}
		if _, ok := cfg.Models.Providers[name]; !ok {
			issues = append(issues, ValidationIssue{
				Path:    "models",
				Message: fmt.Sprintf("provider %q is not defined", name),
			})
		}
	}

	// Agent validation
	positive("agent.windowSize", cfg.Agent.WindowSize)
	positive("agent.maxToolIterations", cfg.Agent.MaxToolIterations)
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		issues = append(issues, ValidationIssue{
			Path:    "agent.temperature",
			Message: fmt.Sprintf("must be 0-2, got %g", cfg.Agent.Temperature),
		})
	}
	if cfg.Agent.TopP < 0 || cfg.Agent.TopP > 1 {
		issues = append(issues, ValidationIssue{
			Path:    "agent.topP",
			Message: fmt.Sprintf("must be 0-1, got %g", cfg.Agent.TopP),
		})
	}

	// Tools validation
	positive("tools.timeoutSeconds", cfg.Tools.TimeoutSeconds)
	positive("tools.partner.radius", cfg.Tools.Partner.Radius)

	// Cache and session validation
	oneOf("cache.backend", cfg.Cache.Backend, []string{"memory", "redis", "sqlite"})
	positive("cache.ttlSeconds", cfg.Cache.TTLSeconds)
	if cfg.Cache.Backend == "redis" && cfg.Cache.Redis.Addr == "" {
		issues = append(issues, ValidationIssue{
			Path:    "cache.redis.addr",
			Message: "required when cache backend is redis",
		})
	}
	oneOf("session.store", cfg.Session.Store, []string{"memory", "sqlite"})

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	oneOf("logging.level", cfg.Logging.Level, validLogLevels)
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	// Events validation
	if cfg.Events.MQTT.Enabled && cfg.Events.MQTT.Broker == "" {
		issues = append(issues, ValidationIssue{
			Path:    "events.mqtt.broker",
			Message: "required when MQTT events are enabled",
		})
	}

	return issues
}
