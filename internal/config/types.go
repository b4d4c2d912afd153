package config

// Config is the root configuration for the GAIA backend.
type Config struct {
	// Development routes upstream tool traffic through Tools.Proxy and
	// enables binary autorestart.
	Development bool          `yaml:"development,omitempty"`
	Gateway     GatewayConfig `yaml:"gateway,omitempty"`
	Models      ModelsConfig  `yaml:"models,omitempty"`
	Agent       AgentConfig   `yaml:"agent,omitempty"`
	Tools       ToolsConfig   `yaml:"tools,omitempty"`
	Cache       CacheConfig   `yaml:"cache,omitempty"`
	Session     SessionConfig `yaml:"session,omitempty"`
	Logging     LoggingConfig `yaml:"logging,omitempty"`
	Events      EventsConfig  `yaml:"events,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	CORS           CORSConfig  `yaml:"cors,omitempty"`
}

// GatewayAuth configures authentication of the operator WebSocket.
type GatewayAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// CORSConfig lists the origins allowed to call the chat API. "*" allows any.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ModelsConfig defines the model providers and the failover order.
type ModelsConfig struct {
	Primary   string                   `yaml:"primary,omitempty"`
	Fallbacks []string                 `yaml:"fallbacks,omitempty"`
	Providers map[string]ProviderEntry `yaml:"providers,omitempty"`
}

// ProviderEntry defines a single model provider.
type ProviderEntry struct {
	Kind    string `yaml:"kind"` // "openai" | "gemini" | "ollama"
	APIKey  string `yaml:"apiKey,omitempty"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// AgentConfig controls the turn orchestrator.
type AgentConfig struct {
	Persona           string  `yaml:"persona,omitempty"`
	PersonaFile       string  `yaml:"personaFile,omitempty"`
	Greeting          *bool   `yaml:"greeting,omitempty"`
	WindowSize        int     `yaml:"windowSize,omitempty"`
	MaxToolIterations int     `yaml:"maxToolIterations,omitempty"`
	MaxTokens         int     `yaml:"maxTokens,omitempty"`
	Temperature       float64 `yaml:"temperature,omitempty"`
	TopP              float64 `yaml:"topP,omitempty"`
}

// GreetingEnabled reports whether the first turn of a new session is
// answered with a canned greeting instead of the model. Off unless set.
func (a AgentConfig) GreetingEnabled() bool {
	return a.Greeting != nil && *a.Greeting
}

// ToolsConfig configures the upstream lookup tools.
type ToolsConfig struct {
	TimeoutSeconds int           `yaml:"timeoutSeconds,omitempty"`
	Proxy          string        `yaml:"proxy,omitempty"`
	Places         PlacesConfig  `yaml:"places,omitempty"`
	Partner        PartnerConfig `yaml:"partner,omitempty"`
}

// PlacesConfig configures the places text search API.
type PlacesConfig struct {
	APIKey   string `yaml:"apiKey,omitempty"`
	BaseURL  string `yaml:"baseUrl,omitempty"`
	PageSize int    `yaml:"pageSize,omitempty"`
}

// PartnerConfig configures the partner establishments API.
type PartnerConfig struct {
	BaseURL      string   `yaml:"baseUrl,omitempty"`
	Radius       int      `yaml:"radius,omitempty"`
	DefaultLimit int      `yaml:"defaultLimit,omitempty"`
	Cities       []string `yaml:"cities,omitempty"`
}

// CacheConfig selects the handoff cache backend.
type CacheConfig struct {
	Backend    string      `yaml:"backend,omitempty"` // "memory" | "redis" | "sqlite"
	TTLSeconds int         `yaml:"ttlSeconds,omitempty"`
	Capacity   int         `yaml:"capacity,omitempty"`
	Redis      RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig defines the redis connection for the handoff cache.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// SessionConfig defines session storage.
type SessionConfig struct {
	Store string `yaml:"store,omitempty"` // "memory" | "sqlite"
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// EventsConfig configures turn event publishing.
type EventsConfig struct {
	MQTT MQTTConfig `yaml:"mqtt,omitempty"`
}

// MQTTConfig defines the broker that receives turn events.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	Broker      string `yaml:"broker,omitempty"`
	ClientID    string `yaml:"clientId,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topicPrefix,omitempty"`
}
