package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mvetter/stewardflow/internal/cache"
	"github.com/mvetter/stewardflow/internal/domain"
)

func newSessionCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage onboarding sessions",
	}

	cmd.AddCommand(
		newSessionStartCmd(app),
		newSessionStatusCmd(app),
		newSessionAdvanceCmd(app),
		newSessionCancelCmd(app),
		newSessionResumeCmd(app),
		newSessionListCmd(app),
	)

	return cmd
}

func newSessionStartCmd(app *app) *cobra.Command {
	var studyContext map[string]string

	cmd := &cobra.Command{
		Use:   "start <study-name>",
		Short: "Start a new onboarding session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			contextValues := make(map[string]any, len(studyContext))
			for key, value := range studyContext {
				contextValues[key] = value
			}

			snapshot, err := app.sessions.Start(cmd.Context(), args[0], contextValues)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Started session %s in phase %s\n", snapshot.ID, snapshot.CurrentPhase)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&studyContext, "context", nil, "study context entries as key=value")
	return cmd
}

func newSessionStatusCmd(app *app) *cobra.Command {
	var asJSON bool
	var refresh bool

	cmd := &cobra.Command{
		Use:   "status <session-id>",
		Short: "Show a session's phase and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			// Snapshot reads go through the cache; --refresh forces a
			// backend round trip.
			snapshot, err := cache.Fetch(cmd.Context(), app.cache, sessionCacheKey(id), sessionCacheTTL, refresh,
				func(ctx context.Context) (domain.SessionSnapshot, error) {
					return app.sessions.Status(ctx, id)
				})
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(snapshot)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %s: phase %s, %d%% overall\n",
				snapshot.ID, snapshot.CurrentPhase, snapshot.OverallProgress)
			for _, phase := range domain.Phases() {
				progress, ok := snapshot.PhaseProgress[phase]
				if !ok {
					continue
				}
				marker := " "
				if progress.Completed {
					marker = "x"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %-18s %3d%%\n", marker, phase, progress.Progress)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw snapshot as JSON")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and fetch from the backend")
	return cmd
}

func newSessionAdvanceCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "advance <session-id>",
		Short: "Run the current phase's operation and advance the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			current, err := app.sessions.Status(cmd.Context(), id)
			if err != nil {
				return err
			}

			snapshot, err := app.sessions.AdvancePhase(cmd.Context(), id, current.CurrentPhase)
			if err != nil {
				return err
			}

			app.cache.Clear(cmd.Context(), sessionCacheKey(id))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %s advanced: %s -> %s\n",
				snapshot.ID, current.CurrentPhase, snapshot.CurrentPhase)
			return nil
		},
	}
}

func newSessionCancelCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <session-id>",
		Short: "Cancel a running session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])
			snapshot, err := app.sessions.Cancel(cmd.Context(), id)
			if err != nil {
				return err
			}

			app.cache.Clear(cmd.Context(), sessionCacheKey(id))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %s cancelled (was %s)\n", snapshot.ID, snapshot.PreviousPhase)
			return nil
		},
	}
}

func newSessionResumeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a session from its last phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])
			snapshot, err := app.sessions.Resume(cmd.Context(), id)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session %s resumed in phase %s\n", snapshot.ID, snapshot.CurrentPhase)
			return nil
		},
	}
}

func newSessionListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions known to this machine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := app.sessions.List(cmd.Context())
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(writer, "ID\tSTUDY\tLAST PHASE\tUPDATED")
			for _, record := range records {
				updated := ""
				if !record.UpdatedAt.IsZero() {
					updated = record.UpdatedAt.Format(time.RFC3339)
				}
				_, _ = fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", record.ID, record.StudyName, record.LastPhase, updated)
			}
			return writer.Flush()
		},
	}
}
