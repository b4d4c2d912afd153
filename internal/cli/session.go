package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/soyeahso/gaia/internal/domain"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and reset stored sessions",
		Long: "Inspect and reset stored sessions. Sessions only outlive the gateway " +
			"process with session.store set to sqlite.",
	}

	cmd.AddCommand(newSessionListCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionResetCmd())
	return cmd
}

func newSessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, most recently active first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openCommandRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			ids := rt.runner.Sessions()
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "(no sessions)")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tPERSONA\tMESSAGES\tUPDATED")
			for _, id := range ids {
				s := rt.runner.Session(id)
				if s == nil {
					continue
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.ID, s.Persona, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		},
	}
}

func newSessionShowCmd() *cobra.Command {
	var showSystem bool

	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openCommandRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			s := rt.runner.Session(args[0])
			if s == nil {
				return fmt.Errorf("session not found: %s", args[0])
			}

			out := cmd.OutOrStdout()
			for _, m := range s.Messages {
				if m.Role == domain.RoleSystem && !showSystem {
					continue
				}
				label := string(m.Role)
				switch {
				case m.ToolName != "":
					label = fmt.Sprintf("%s:%s#%d", m.Role, m.ToolName, m.Turn)
				case len(m.ToolCalls) > 0:
					names := make([]string, 0, len(m.ToolCalls))
					for _, tc := range m.ToolCalls {
						names = append(names, tc.Name)
					}
					label = fmt.Sprintf("%s→%s", m.Role, strings.Join(names, ","))
				}
				fmt.Fprintf(out, "[%s] %s\n", label, m.Content)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSystem, "system", false, "include the system prompt")
	return cmd
}

func newSessionResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <session-id>",
		Short: "Delete a session's history and cached tool payloads",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openCommandRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			if err := rt.runner.Reset(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset session %s\n", args[0])
			return nil
		},
	}
}

// openCommandRuntime loads config and assembles a runtime without plugins.
func openCommandRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return openRuntime(ctx, cfg, false)
}
