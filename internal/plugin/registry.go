package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/logging"
)

// Registry owns plugin lifecycle. Plugins are initialized in registration
// order and closed in reverse.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
	hooks   *hooks.Manager
	log     *logging.Logger
}

type entry struct {
	plugin Plugin
	ready  bool
}

// Info summarizes a registered plugin.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Initialized bool   `json:"initialized"`
}

// NewRegistry creates a plugin registry.
func NewRegistry(hm *hooks.Manager, log *logging.Logger) *Registry {
	return &Registry{hooks: hm, log: log.Sub("plugins")}
}

// Register adds a plugin without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.find(p.ID()) != nil {
		return fmt.Errorf("plugin already registered: %s", p.ID())
	}
	r.entries = append(r.entries, &entry{plugin: p})
	r.log.Debug().Str("id", p.ID()).Str("version", p.Version()).Msg("plugin registered")
	return nil
}

// InitAll initializes every registered plugin. If one fails, the plugins
// initialized before it are closed again and the error is returned.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.ready {
			continue
		}
		id := e.plugin.ID()
		if err := e.plugin.Init(ctx, API{Hooks: r.hooks, Log: r.log.Sub(id)}); err != nil {
			closeErr := r.closeLocked(ctx)
			return errors.Join(fmt.Errorf("init plugin %s: %w", id, err), closeErr)
		}
		e.ready = true
		r.log.Info().Str("id", id).Msg("plugin started")
	}
	return nil
}

// CloseAll closes initialized plugins in reverse order and joins their
// errors.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked(ctx)
}

func (r *Registry) closeLocked(ctx context.Context) error {
	var errs []error
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if !e.ready {
			continue
		}
		e.ready = false
		if err := e.plugin.Close(ctx); err != nil {
			r.log.Error().Err(err).Str("id", e.plugin.ID()).Msg("plugin close error")
			errs = append(errs, fmt.Errorf("close plugin %s: %w", e.plugin.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// Info lists registered plugins in registration order.
func (r *Registry) Info() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, Info{
			ID:          e.plugin.ID(),
			Name:        e.plugin.Name(),
			Version:     e.plugin.Version(),
			Initialized: e.ready,
		})
	}
	return out
}

func (r *Registry) find(id string) *entry {
	for _, e := range r.entries {
		if e.plugin.ID() == id {
			return e
		}
	}
	return nil
}
