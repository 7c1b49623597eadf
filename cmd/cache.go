package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear the local response cache",
	}

	cmd.AddCommand(
		newCacheStatusCmd(app),
		newCacheClearCmd(app),
	)

	return cmd
}

func newCacheStatusCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached keys, tiers, and freshness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses := app.cache.Status(cmd.Context())
			if len(statuses) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cache is empty")
				return nil
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(writer, "KEY\tAGE\tSTATE")
			for _, status := range statuses {
				state := "stale"
				if status.Valid {
					state = "fresh"
				}
				_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\n",
					status.Key, status.Age.Round(time.Second), state)
			}
			return writer.Flush()
		},
	}
}

func newCacheClearCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [key]",
		Short: "Clear one cached key, or everything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				app.cache.Clear(cmd.Context(), args[0])
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", args[0])
				return nil
			}

			app.cache.ClearAll(cmd.Context())
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	}
}
