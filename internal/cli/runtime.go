package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/hooks"
	"github.com/soyeahso/gaia/internal/llm"
	"github.com/soyeahso/gaia/internal/logging"
	"github.com/soyeahso/gaia/internal/mqtt"
	"github.com/soyeahso/gaia/internal/plugin"
	"github.com/soyeahso/gaia/internal/store"
	"github.com/soyeahso/gaia/internal/tools"
)

// sweepInterval is how often backends without native expiry drop stale
// handoff slots.
const sweepInterval = time.Minute

// runtime is the assembled concierge: stores, tools, runner and plugins.
type runtime struct {
	cfg     config.Config
	log     *logging.Logger
	hooks   *hooks.Manager
	handoff *cache.Handoff
	tools   *agent.ToolRegistry
	runner  *agent.Runner
	plugins *plugin.Registry

	closers []func() error
}

// loadConfig loads and validates the config file.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if issues := config.Validate(&cfg); len(issues) > 0 {
		for _, issue := range issues {
			log.Error().Str("path", issue.Path).Msg(issue.Message)
		}
		return cfg, fmt.Errorf("config validation failed with %d issue(s)", len(issues))
	}
	return cfg, nil
}

// openRuntime wires every component from cfg. With withPlugins set the
// event plugins are started too; short-lived commands skip them.
func openRuntime(ctx context.Context, cfg config.Config, withPlugins bool) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg}
	defer func() {
		if err != nil {
			rt.Close(context.Background())
		}
	}()

	var logCloser io.Closer
	rt.log, logCloser, err = logging.Open(logging.Options{
		Level: cfg.Logging.Level,
		Style: cfg.Logging.ConsoleStyle,
		File:  cfg.Logging.File,
	})
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, logCloser.Close)
	rt.hooks = hooks.NewManager(rt.log)

	registry, err := llm.NewRegistryFromConfig(ctx, cfg.Models, rt.log)
	if err != nil {
		return nil, fmt.Errorf("building model registry: %w", err)
	}

	var db *store.DB
	openDB := func() (*store.DB, error) {
		if db != nil {
			return db, nil
		}
		var err error
		db, err = store.Open(paths.Database(), rt.log)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)
		return db, nil
	}

	slots, err := openCacheStore(ctx, cfg.Cache, openDB)
	if err != nil {
		return nil, err
	}
	if c, ok := slots.(io.Closer); ok {
		rt.closers = append(rt.closers, c.Close)
	}
	if sw, ok := slots.(cache.Sweeper); ok {
		sweepCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		done := make(chan struct{})
		go func() {
			defer close(done)
			cache.SweepEvery(sweepCtx, sw, sweepInterval, rt.log.Sub("cache"))
		}()
		rt.closers = append(rt.closers, func() error { stop(); <-done; return nil })
	}
	rt.handoff = cache.NewHandoff(slots, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	rt.log.Debug().Str("backend", cfg.Cache.Backend).Dur("ttl", rt.handoff.TTL()).Msg("handoff cache ready")

	var sessions agent.SessionStore
	switch cfg.Session.Store {
	case "sqlite":
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		sessions = store.NewSQLiteSessionStore(db)
		rt.log.Info().Str("path", paths.Database()).Msg("using SQLite session store")
	default:
		sessions = agent.NewMemorySessionStore()
		rt.log.Debug().Msg("using in-memory session store")
	}

	lookups, err := tools.New(tools.Options{
		Config:      cfg.Tools,
		Development: cfg.Development,
		Handoff:     rt.handoff,
		Logger:      rt.log,
	})
	if err != nil {
		return nil, err
	}
	rt.tools = agent.NewToolRegistry()
	for _, t := range lookups {
		if err := rt.tools.Register(t); err != nil {
			return nil, err
		}
	}

	personas, err := agent.LoadPersonas(cfg.Agent.PersonaFile)
	if err != nil {
		return nil, err
	}
	persona, ok := personas.Get(cfg.Agent.Persona)
	if !ok {
		return nil, fmt.Errorf("unknown persona %q (available: %v)", cfg.Agent.Persona, personas.Names())
	}

	temperature, topP := cfg.Agent.Temperature, cfg.Agent.TopP
	rt.runner = agent.NewRunner(
		agent.RunnerConfig{
			Model:             cfg.Models.Primary,
			Fallbacks:         cfg.Models.Fallbacks,
			Persona:           persona,
			Greeting:          cfg.Agent.GreetingEnabled(),
			WindowSize:        cfg.Agent.WindowSize,
			MaxToolIterations: cfg.Agent.MaxToolIterations,
			MaxTokens:         cfg.Agent.MaxTokens,
			Temperature:       &temperature,
			TopP:              &topP,
		},
		registry,
		sessions,
		rt.tools,
		rt.handoff,
		rt.hooks,
		rt.log,
	)

	if withPlugins {
		rt.plugins = plugin.NewRegistry(rt.hooks, rt.log)
		if cfg.Events.MQTT.Enabled {
			if err := rt.plugins.Register(mqtt.NewEventPublisher(cfg.Events.MQTT)); err != nil {
				return nil, err
			}
		}
		if err := rt.plugins.InitAll(ctx); err != nil {
			return nil, fmt.Errorf("initializing plugins: %w", err)
		}
	}
	return rt, nil
}

// openCacheStore selects the handoff cache backend.
func openCacheStore(ctx context.Context, cfg config.CacheConfig, openDB func() (*store.DB, error)) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "sqlite":
		db, err := openDB()
		if err != nil {
			return nil, err
		}
		return store.NewHandoffStore(db), nil
	default:
		return cache.NewMemoryStore(cfg.Capacity), nil
	}
}

// Close stops plugins and releases stores in reverse order of opening.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.plugins != nil {
		errs = append(errs, rt.plugins.CloseAll(ctx))
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}
