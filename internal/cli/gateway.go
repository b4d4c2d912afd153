package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/gaia/internal/gateway"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Manage the GAIA gateway server",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port        int
		bind        string
		turnTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := rt.Close(closeCtx); err != nil {
					rt.log.Warn().Err(err).Msg("shutdown")
				}
			}()

			var plugins []string
			if rt.plugins != nil {
				for _, p := range rt.plugins.Info() {
					plugins = append(plugins, p.ID)
				}
			}
			rt.log.Info().
				Str("persona", rt.runner.Persona().Name).
				Strs("plugins", plugins).
				Str("model", cfg.Models.Primary).
				Str("cache", cfg.Cache.Backend).
				Str("sessions", cfg.Session.Store).
				Strs("tools", rt.tools.Names()).
				Msg("concierge ready")

			srv := gateway.New(cfg.Gateway, rt.runner, rt.log,
				gateway.WithHooks(rt.hooks),
				gateway.WithTurnTimeout(turnTimeout),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (auto, lan, loopback, custom)")
	cmd.Flags().DurationVar(&turnTimeout, "turn-timeout", gateway.DefaultTurnTimeout, "maximum duration of one chat turn")

	return cmd
}
