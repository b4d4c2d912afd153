// Command mcp-places serves the concierge lookup tools over MCP stdio.
//
// Payloads cached by the searches land in the configured handoff cache, so
// with the redis backend a gateway sharing that cache can pick them up.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/logging"
	"github.com/soyeahso/gaia/internal/tools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mcp-places:", err)
		os.Exit(1)
	}
}

func run() error {
	paths, err := config.ResolvePaths()
	if err != nil {
		return err
	}
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return err
	}

	// stdout carries the protocol, so logs only go to the file.
	log, closer, err := logging.Open(logging.Options{
		Level: cfg.Logging.Level,
		Style: "json",
		File:  filepath.Join(paths.Logs, "mcp-places.log"),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var slots cache.Store
	if cfg.Cache.Backend == "redis" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rs.Close()
		slots = rs
	} else {
		slots = cache.NewMemoryStore(cfg.Cache.Capacity)
	}
	handoff := cache.NewHandoff(slots, time.Duration(cfg.Cache.TTLSeconds)*time.Second)

	lookups, err := tools.New(tools.Options{
		Config:      cfg.Tools,
		Development: cfg.Development,
		Handoff:     handoff,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	registry := agent.NewToolRegistry()
	for _, t := range lookups {
		if err := registry.Register(t); err != nil {
			return err
		}
	}

	log.Info().Strs("tools", registry.Names()).Str("cache", cfg.Cache.Backend).Msg("mcp-places starting")
	return newMCPServer(registry, os.Stdout, log).Run(ctx, os.Stdin)
}
