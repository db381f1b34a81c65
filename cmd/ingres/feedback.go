package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"ingres/internal/app"
	"ingres/internal/domain"
)

func feedbackCMD(g *globalFlags) *cobra.Command {
	var fb domain.Feedback
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Rate an answer from 1 to 5",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), g, func(ctx context.Context, a *app.App) error {
				if err := a.Service.RecordFeedback(ctx, fb); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "feedback recorded")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&fb.SessionID, "session", "", "session id printed by ask")
	cmd.Flags().StringVar(&fb.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&fb.Query, "query", "", "the question asked")
	cmd.Flags().StringVar(&fb.Answer, "answer", "", "the answer rated")
	cmd.Flags().IntVar(&fb.Rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&fb.Comments, "comments", "", "free-form comments")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}
