package config

import (
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Tools.Places.APIKey = expandEnvVars(cfg.Tools.Places.APIKey)
	cfg.Cache.Redis.Password = expandEnvVars(cfg.Cache.Redis.Password)
	cfg.Events.MQTT.Password = expandEnvVars(cfg.Events.MQTT.Password)
	for name, provider := range cfg.Models.Providers {
		provider.APIKey = expandEnvVars(provider.APIKey)
		cfg.Models.Providers[name] = provider
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = Defaults()
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 8080
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if len(cfg.Gateway.CORS.AllowedOrigins) == 0 {
		cfg.Gateway.CORS.AllowedOrigins = []string{"*"}
	}

	if cfg.Models.Providers == nil {
		cfg.Models.Providers = map[string]ProviderEntry{}
	}
	if len(cfg.Models.Providers) == 0 {
		cfg.Models.Providers["openai"] = ProviderEntry{Kind: "openai", Model: "gpt-4o-mini"}
	}
	if cfg.Models.Primary == "" {
		cfg.Models.Primary = "openai"
	}

	if cfg.Agent.Persona == "" {
		cfg.Agent.Persona = "gaia"
	}
	if cfg.Agent.WindowSize == 0 {
		cfg.Agent.WindowSize = 6
	}
	if cfg.Agent.MaxToolIterations == 0 {
		cfg.Agent.MaxToolIterations = 5
	}
	if cfg.Agent.Temperature == 0 {
		cfg.Agent.Temperature = 0.4
	}
	if cfg.Agent.TopP == 0 {
		cfg.Agent.TopP = 0.85
	}

	if cfg.Tools.TimeoutSeconds == 0 {
		cfg.Tools.TimeoutSeconds = 30
	}
	if cfg.Tools.Places.BaseURL == "" {
		cfg.Tools.Places.BaseURL = DefaultPlacesBaseURL
	}
	if cfg.Tools.Places.PageSize == 0 {
		cfg.Tools.Places.PageSize = 20
	}
	if cfg.Tools.Partner.BaseURL == "" {
		cfg.Tools.Partner.BaseURL = DefaultPartnerBaseURL
	}
	if cfg.Tools.Partner.Radius == 0 {
		cfg.Tools.Partner.Radius = 50
	}
	if cfg.Tools.Partner.DefaultLimit == 0 {
		cfg.Tools.Partner.DefaultLimit = 10
	}
	if len(cfg.Tools.Partner.Cities) == 0 {
		cfg.Tools.Partner.Cities = append([]string(nil), DefaultCities...)
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = 10000
	}

	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}

	if cfg.Events.MQTT.ClientID == "" {
		cfg.Events.MQTT.ClientID = "gaia"
	}
	if cfg.Events.MQTT.TopicPrefix == "" {
		cfg.Events.MQTT.TopicPrefix = "gaia"
	}
}

// applyEnvOverrides reads GAIA_* and provider environment variables and
// overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GAIA_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("GAIA_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("GAIA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("GAIA_PERSONA"); v != "" {
		cfg.Agent.Persona = v
	}
	if v := os.Getenv("GAIA_CACHE_BACKEND"); v != "" {
		cfg.Cache.Backend = v
	}
	if v := os.Getenv("DEVELOPMENT"); v != "" {
		cfg.Development = strings.EqualFold(v, "true") || v == "1"
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		setProviderField(cfg, "openai", func(p *ProviderEntry) { p.APIKey = v })
	}
	if v := os.Getenv("OPENAI_API_MODEL"); v != "" {
		setProviderField(cfg, "openai", func(p *ProviderEntry) { p.Model = v })
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		setProviderField(cfg, "gemini", func(p *ProviderEntry) { p.APIKey = v })
	}
	if v := os.Getenv("GOOGLE_PLACES_API_KEY"); v != "" {
		cfg.Tools.Places.APIKey = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		if _, _, err := net.SplitHostPort(v); err != nil {
			v = net.JoinHostPort(v, "6379")
		}
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
}

func setProviderField(cfg *Config, name string, set func(*ProviderEntry)) {
	if cfg.Models.Providers == nil {
		cfg.Models.Providers = map[string]ProviderEntry{}
	}
	p, ok := cfg.Models.Providers[name]
	if !ok {
		p = ProviderEntry{Kind: name}
	}
	set(&p)
	cfg.Models.Providers[name] = p
}
