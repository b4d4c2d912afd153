package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/gaia/internal/config"
	"github.com/soyeahso/gaia/internal/gateway"
	"github.com/soyeahso/gaia/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show GAIA status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "GAIA %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}

			auth := gateway.ResolveAuth(cfg.Gateway.Auth)
			console := "disabled (no credential)"
			if auth.Configured() {
				console = "auth=" + auth.Mode
			}
			fmt.Fprintf(out, "Gateway: port=%d bind=%s cors=%s console=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, strings.Join(cfg.Gateway.CORS.AllowedOrigins, ","), console)

			names := make([]string, 0, len(cfg.Models.Providers))
			for name, p := range cfg.Models.Providers {
				key := "no key"
				if p.APIKey != "" || p.Kind == "ollama" {
					key = "ready"
				}
				names = append(names, fmt.Sprintf("%s(%s %s, %s)", name, p.Kind, p.Model, key))
			}
			sort.Strings(names)
			fmt.Fprintf(out, "Models:  primary=%s fallbacks=%v\n", cfg.Models.Primary, cfg.Models.Fallbacks)
			fmt.Fprintf(out, "         %s\n", strings.Join(names, ", "))

			fmt.Fprintf(out, "Agent:   persona=%s greeting=%v window=%d maxToolIterations=%d temperature=%.2f topP=%.2f\n",
				cfg.Agent.Persona, cfg.Agent.GreetingEnabled(), cfg.Agent.WindowSize,
				cfg.Agent.MaxToolIterations, cfg.Agent.Temperature, cfg.Agent.TopP)

			placesKey := "missing"
			if cfg.Tools.Places.APIKey != "" {
				placesKey = "set"
			}
			fmt.Fprintf(out, "Tools:   places=%s (key %s) partner=%s cities=%s\n",
				cfg.Tools.Places.BaseURL, placesKey, cfg.Tools.Partner.BaseURL, strings.Join(cfg.Tools.Partner.Cities, ","))
			if cfg.Development {
				proxy := cfg.Tools.Proxy
				if proxy == "" {
					proxy = config.DefaultDevProxy
				}
				fmt.Fprintf(out, "         development proxy=%s\n", proxy)
			}

			cacheDesc := cfg.Cache.Backend
			if cfg.Cache.Backend == "redis" {
				cacheDesc += " " + cfg.Cache.Redis.Addr
			}
			fmt.Fprintf(out, "Cache:   %s ttl=%ds\n", cacheDesc, cfg.Cache.TTLSeconds)
			fmt.Fprintf(out, "Session: store=%s\n", cfg.Session.Store)

			if cfg.Events.MQTT.Enabled {
				fmt.Fprintf(out, "Events:  mqtt broker=%s topics=%s/events/#\n", cfg.Events.MQTT.Broker, cfg.Events.MQTT.TopicPrefix)
			} else {
				fmt.Fprintln(out, "Events:  (disabled)")
			}

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			return nil
		},
	}

	return cmd
}
