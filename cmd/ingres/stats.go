package main

import (
	"context"

	"github.com/spf13/cobra"

	"ingres/internal/app"
)

func statsCMD(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index and component health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Health())
			})
		},
	}
}
