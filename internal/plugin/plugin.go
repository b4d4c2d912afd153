// Package plugin manages optional extensions that observe the concierge
// through its hook events, such as the MQTT event publisher.
package plugin

import (
	"context"

	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/logging"
)

// Plugin is an extension with an explicit lifecycle.
type Plugin interface {
	// ID returns a unique identifier, e.g. "mqtt-events".
	ID() string

	// Name returns a human-readable name.
	Name() string

	// Version returns the plugin version string.
	Version() string

	// Init subscribes the plugin to hooks and acquires its resources.
	Init(ctx context.Context, api API) error

	// Close releases resources. ctx bounds how long shutdown may take.
	Close(ctx context.Context) error
}

// API is what a plugin receives at Init.
type API struct {
	Hooks *hooks.Manager
	Log   *logging.Logger
}
