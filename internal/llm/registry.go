package llm

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/logging"
)

// Provider is one configured model endpoint.
type Provider struct {
	Name   string
	Model  string // default model; also accepted as a reference to this provider
	Client Client
}

// Registry maps model references to providers. A reference is a provider
// name, a provider's model name, or anything else, which goes to the
// primary provider as a model override. The empty reference is the primary
// provider's default model.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	models    map[string]string
	primary   string
	log       *logging.Logger
}

func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		providers: map[string]Provider{},
		models:    map[string]string{},
		log:       log.Sub("llm"),
	}
}

// Add registers p. The first provider added becomes primary until
// SetPrimary says otherwise.
func (r *Registry) Add(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name] = p
	if p.Model != "" {
		r.models[p.Model] = p.Name
	}
	if r.primary == "" {
		r.primary = p.Name
	}
	r.log.Debug().Str("provider", p.Name).Str("model", p.Model).Msg("provider registered")
}

func (r *Registry) SetPrimary(name string) {
	r.mu.Lock()
	r.primary = name
	r.mu.Unlock()
}

func (r *Registry) Primary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary
}

// Names lists the registered providers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.providers))
}

// Route resolves ref to a client and the model the request should name.
// An empty model means the provider's own default.
func (r *Registry) Route(ref string) (Client, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.providers[ref]; ok {
		return p.Client, "", nil
	}
	if name, ok := r.models[ref]; ok {
		return r.providers[name].Client, ref, nil
	}
	if p, ok := r.providers[r.primary]; ok {
		return p.Client, ref, nil
	}
	return nil, "", fmt.Errorf("no LLM provider for model %q", ref)
}

// Chain returns a Client that tries refs in order, moving on only when a
// provider fails with a retryable error.
func (r *Registry) Chain(refs ...string) Client {
	return &chain{reg: r, refs: refs, log: r.log.Sub("failover")}
}

type chain struct {
	reg  *Registry
	refs []string
	log  *logging.Logger
}

func (c *chain) Name() string {
	if len(c.refs) == 0 {
		return "chain"
	}
	return "chain:" + c.refs[0]
}

func (c *chain) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for _, ref := range c.refs {
		client, model, err := c.reg.Route(ref)
		if err != nil {
			c.log.Debug().Err(err).Str("ref", ref).Msg("skipping unroutable model")
			lastErr = err
			continue
		}

		req.Model = model
		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return nil, err
		}
		c.log.Warn().Err(err).Str("ref", ref).Msg("provider failed, trying next")
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no model configured")
	}
	return nil, lastErr
}

// NewRegistryFromConfig builds a client per configured provider.
func NewRegistryFromConfig(ctx context.Context, cfg config.ModelsConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)
	for _, name := range slices.Sorted(maps.Keys(cfg.Providers)) {
		entry := cfg.Providers[name]
		client, err := newProviderClient(ctx, name, entry)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		reg.Add(Provider{Name: name, Model: entry.Model, Client: client})
	}
	if cfg.Primary != "" {
		reg.SetPrimary(cfg.Primary)
	}
	return reg, nil
}

func newProviderClient(ctx context.Context, name string, p config.ProviderEntry) (Client, error) {
	switch p.Kind {
	case "openai":
		return NewOpenAIClient(name, p.APIKey, p.Model, p.BaseURL), nil
	case "gemini":
		return NewGeminiClient(ctx, p.APIKey, p.Model)
	case "ollama":
		return NewOllamaClient(p.BaseURL, p.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
	}
}
