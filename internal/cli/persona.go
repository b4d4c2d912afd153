package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/config"
)

func newPersonaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "persona",
		Short: "Inspect the concierge personas",
	}

	cmd.AddCommand(newPersonaListCmd())
	cmd.AddCommand(newPersonaShowCmd())
	return cmd
}

func loadPersonaLibrary() (*agent.PersonaLibrary, config.Config, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		cfg = config.Defaults()
	}
	lib, err := agent.LoadPersonas(cfg.Agent.PersonaFile)
	return lib, cfg, err
}

func newPersonaListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, cfg, err := loadPersonaLibrary()
			if err != nil {
				return err
			}

			for _, name := range lib.Names() {
				p, _ := lib.Get(name)
				def := ""
				if name == cfg.Agent.Persona {
					def = " (active)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %-12s greetings=%d%s\n", name, len(p.Greetings), def)
			}
			return nil
		},
	}
}

func newPersonaShowCmd() *cobra.Command {
	var (
		sessionID string
		token     string
	)

	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Print a persona's system prompt as a session would receive it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, cfg, err := loadPersonaLibrary()
			if err != nil {
				return err
			}

			name := cfg.Agent.Persona
			if len(args) > 0 {
				name = args[0]
			}
			p, ok := lib.Get(name)
			if !ok {
				return fmt.Errorf("persona not found: %s", name)
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, agent.ComposeSystemPrompt(p, sessionID, token))
			if p.Greets() {
				fmt.Fprintf(out, "\nGreetings (sent only with agent.greeting enabled, currently %v):\n", cfg.Agent.GreetingEnabled())
				for _, g := range p.Greetings {
					fmt.Fprintf(out, "  - %s\n", g)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "{session_id}", "session id to render into the prompt")
	cmd.Flags().StringVar(&token, "token", "{token}", "token to render into the prompt")
	return cmd
}
