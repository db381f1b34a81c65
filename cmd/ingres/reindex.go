package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"ingres/internal/app"
	"ingres/internal/ingest"
)

func reindexCMD(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild structured records and the vector index from sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				rep, err := a.Reindex(ctx)
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
}

func watchCMD(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Rebuild whenever a source file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				serveMetrics(ctx, a)
				out := cmd.OutOrStdout()
				debounce := time.Duration(a.Config.Ingest.DebounceMillis) * time.Millisecond
				w := ingest.NewWatcher(a.Rebuilder, debounce, func(rep ingest.Report, err error) {
					a.AfterRebuild(rep, err)
					if err != nil {
						fmt.Fprintf(out, "rebuild failed: %v\n", err)
						return
					}
					printReport(out, rep)
				})
				fmt.Fprintf(out, "watching %d directories, ctrl+c to stop\n", len(w.Dirs()))
				return w.Run(ctx)
			})
		},
	}
}

func printReport(w io.Writer, rep ingest.Report) {
	fmt.Fprintf(w, "indexed %d documents (%d records) from %d files in %s\n",
		rep.Documents, rep.Records, len(rep.Files), rep.Duration.Round(time.Millisecond))
	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "  skipped %s\n", s)
	}
	if rep.Summary != "" {
		fmt.Fprintf(w, "summary: %s\n", rep.Summary)
	}
}
