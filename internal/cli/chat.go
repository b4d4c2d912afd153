package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/soyeahso/gaia/internal/agent"
	"github.com/soyeahso/gaia/internal/gateway"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the concierge from the terminal",
	}

	cmd.AddCommand(newChatSendCmd())
	return cmd
}

func newChatSendCmd() *cobra.Command {
	var (
		sessionID string
		token     string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Run one chat turn and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			if sessionID == "" {
				sessionID = uuid.New().String()
			}
			if token == "" {
				// No partner account: partner searches run in guest mode.
				token = sessionID
			}

			result, err := rt.runner.Run(ctx, agent.TurnRequest{
				SessionID: sessionID,
				Message:   message,
				Token:     token,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(gateway.NewChatResponse(result))
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Response)
			printTurnSummary(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id (default: a new random id)")
	cmd.Flags().StringVar(&token, "token", "", "partner access token (default: guest access)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full chat API response")

	return cmd
}

func printTurnSummary(result *agent.TurnResult) {
	var tools []string
	if result.PlacesTool != nil {
		tools = append(tools, result.PlacesTool.ToolName)
	}
	if result.PartnerTool != nil {
		tools = append(tools, result.PartnerTool.ToolName)
	}
	fmt.Fprintf(os.Stderr, "\n[session=%s model=%s tokens=%d+%d tools=%s duration=%s]\n",
		result.SessionID, result.Model,
		result.Usage.InputTokens, result.Usage.OutputTokens,
		strings.Join(tools, ","), result.Duration.Round(time.Millisecond))
}
