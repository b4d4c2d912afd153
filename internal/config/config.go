package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPlacesBaseURL  = "https://places.googleapis.com"
	DefaultPartnerBaseURL = "https://backend.clapzy.pro"
	DefaultDevProxy       = "http://localhost:5000"
)

// DefaultCities are the cities where the partner network operates.
var DefaultCities = []string{"Quito", "Bogota", "Cali", "Medellin"}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}
