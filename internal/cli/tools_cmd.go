package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/gaia/internal/cache"
	"github.com/soyeahso/gaia/internal/domain"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List and call the concierge's lookup tools",
	}

	cmd.AddCommand(newToolsListCmd())
	cmd.AddCommand(newToolsCallCmd())
	return cmd
}

func newToolsListCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tools offered to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openCommandRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			out := cmd.OutOrStdout()
			for _, def := range rt.runner.Tools() {
				fmt.Fprintf(out, "%s\n  %s\n", def.Name, def.Description)
				if verbose {
					fmt.Fprintf(out, "  schema: %s\n", strings.Join(strings.Fields(string(def.InputSchema)), " "))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print input schemas")
	return cmd
}

func newToolsCallCmd() *cobra.Command {
	var (
		sessionID string
		token     string
		showCache bool
	)

	cmd := &cobra.Command{
		Use:   "call <tool> <json-input>",
		Short: "Run one tool directly, bypassing the model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openCommandRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			if sessionID == "" {
				sessionID = "cli-" + uuid.New().String()
			}
			if token == "" {
				token = sessionID
			}
			ctx := domain.WithTurn(cmd.Context(), domain.TurnContext{SessionID: sessionID, Token: token, Turn: 1})

			result, err := rt.tools.Execute(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, result)

			// The handoff slots are consumed here either way so a CLI call
			// never leaves payloads behind for the TTL.
			places, _ := rt.handoff.TakePlaces(ctx, sessionID)
			query, _ := rt.handoff.TakeQuery(ctx, sessionID)
			partners, _ := rt.handoff.TakePartners(ctx, sessionID)
			if showCache {
				printSlot(out, cache.PlacesKey(sessionID), places)
				printSlot(out, cache.QueryKey(sessionID), []byte(query))
				printSlot(out, cache.PartnerKey(sessionID), partners)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id the tool caches under")
	cmd.Flags().StringVar(&token, "token", "", "partner access token (default: guest access)")
	cmd.Flags().BoolVar(&showCache, "cache", false, "print the raw payloads the tool cached")
	return cmd
}

func printSlot(out io.Writer, key string, value []byte) {
	if len(value) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n%s\n", key, value)
}
