package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"ingres/internal/app"
	"ingres/internal/tui"
)

func chatCMD(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive groundwater chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				serveMetrics(ctx, a)
				h := a.Health()
				header := fmt.Sprintf("%d documents indexed (%s)  store=%s  generation=%t",
					h.Index.Documents, h.Index.Embedder, h.Store, h.GenerationConfigured)
				_, err := tea.NewProgram(tui.New(ctx, a.Service, header), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				return err
			})
		},
	}
}
