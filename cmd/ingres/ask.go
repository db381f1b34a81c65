package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ingres/internal/app"
	"ingres/internal/domain"
)

func askCMD(g *globalFlags) *cobra.Command {
	var (
		sessionID string
		userID    string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				resp := a.Service.Process(ctx, domain.Query{Text: strings.Join(args, " "), SessionID: sessionID, UserID: userID})
				out := cmd.OutOrStdout()
				if asJSON {
					return printJSON(out, resp)
				}
				fmt.Fprintln(out, resp.Answer)
				fmt.Fprintln(out)
				for i, s := range resp.Sources {
					fmt.Fprintf(out, "[%d] %s  %s  %s\n", i+1, s.Type, s.Origin, s.Content)
				}
				fmt.Fprintf(out, "\nintent=%s confidence=%.2f latency=%s session=%s\n",
					resp.Intent, resp.Confidence, resp.Latency, resp.SessionID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing session")
	cmd.Flags().StringVar(&userID, "user", "", "user id recorded with the query")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}
