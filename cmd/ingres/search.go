package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"ingres/internal/app"
	"ingres/internal/domain"
)

func searchCMD(g *globalFlags) *cobra.Command {
	search := &cobra.Command{
		Use:   "search",
		Short: "Query one retrieval channel directly",
	}

	var (
		state string
		year  string
		text  string
		limit int
	)
	structuredCmd := &cobra.Command{
		Use:   "structured",
		Short: "Filter structured records by state, year or free text",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				recs, err := a.Service.SearchStructured(ctx, domain.Filter{Region: state, Period: year, Text: text, Limit: limit})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"records": recs, "count": len(recs)})
			})
		},
	}
	structuredCmd.Flags().StringVar(&state, "state", "", "state or union territory")
	structuredCmd.Flags().StringVar(&year, "year", "", "assessment year, e.g. 2022-2023")
	structuredCmd.Flags().StringVar(&text, "text", "", "free text")
	structuredCmd.Flags().IntVar(&limit, "limit", 0, "maximum records (default retrieval.raw_limit)")

	var k int
	docsCmd := &cobra.Command{
		Use:   "docs <query>",
		Short: "Semantic search over indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				hits, err := a.Service.SearchDocuments(ctx, strings.Join(args, " "), k)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"results": hits, "count": len(hits)})
			})
		},
	}
	docsCmd.Flags().IntVarP(&k, "k", "k", 5, "number of results")

	search.AddCommand(structuredCmd, docsCmd)
	return search
}
