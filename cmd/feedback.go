package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvetter/stewardflow/internal/domain"
)

func newFeedbackCmd(app *app) *cobra.Command {
	var reanalyze bool

	cmd := &cobra.Command{
		Use:   "feedback <session-id> <text>",
		Short: "Send steward feedback on the current recommendations",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			if err := app.approvals.SubmitFeedback(cmd.Context(), id, args[1], reanalyze); err != nil {
				return err
			}

			if reanalyze {
				// Reanalysis can change the recommended set; drop the cached
				// approvals list so the next review re-fetches.
				app.cache.Clear(cmd.Context(), approvalsCacheKey(id))
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "feedback submitted, reanalysis requested")
				return nil
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "feedback submitted")
			return nil
		},
	}

	cmd.Flags().BoolVar(&reanalyze, "reanalyze", false, "ask the backend to re-run recommendation analysis")
	return cmd
}
