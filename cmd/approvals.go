package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	progressrender "github.com/mvetter/stewardflow/internal/adapters/render/progress"
	"github.com/mvetter/stewardflow/internal/cache"
	"github.com/mvetter/stewardflow/internal/domain"
)

func newApprovalsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approvals",
		Short: "Review and decide recommended data sources",
	}

	cmd.AddCommand(
		newApprovalsListCmd(app),
		newApprovalsDecideCmd(app, domain.ApprovalApproved),
		newApprovalsDecideCmd(app, domain.ApprovalRejected),
		newApprovalsFinalizeCmd(app),
		newApprovalsAuditCmd(app),
		newApprovalsExportCmd(app),
	)

	return cmd
}

// loadApprovals reads the session's approval list, cached briefly so
// repeated review commands don't hammer the backend, and seeds the local
// approval state.
func (a *app) loadApprovals(ctx context.Context, id domain.SessionID, refresh bool) ([]domain.SourceApproval, error) {
	approvals, err := cache.Fetch(ctx, a.cache, approvalsCacheKey(id), approvalsCacheTTL, refresh,
		func(ctx context.Context) ([]domain.SourceApproval, error) {
			list, _, err := a.backend.ListApprovals(ctx, id)
			return list, err
		})
	if err != nil {
		return nil, err
	}

	a.approvals.Initialize(ctx, id, approvals)
	return approvals, nil
}

func newApprovalsListCmd(app *app) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "list <session-id>",
		Short: "List recommended sources and their approval state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			approvals, err := app.loadApprovals(cmd.Context(), id, refresh)
			if err != nil {
				return err
			}

			sort.Slice(approvals, func(i, j int) bool {
				if approvals[i].SourceType != approvals[j].SourceType {
					return approvals[i].SourceType < approvals[j].SourceType
				}
				return approvals[i].SourceID < approvals[j].SourceID
			})

			for _, approval := range approvals {
				line := fmt.Sprintf("%-10s %s/%s", approval.Status, approval.SourceType, approval.SourceID)
				if approval.Reason != "" {
					line += "  (" + approval.Reason + ")"
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			summary, err := progressrender.RenderSummary(app.approvals.Summary(id))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and fetch from the backend")
	return cmd
}

func newApprovalsDecideCmd(app *app, status domain.ApprovalStatus) *cobra.Command {
	var reason string

	use := "approve"
	short := "Approve a recommended source"
	if status == domain.ApprovalRejected {
		use = "reject"
		short = "Reject a recommended source (terminal, kept in the denominator)"
	}

	cmd := &cobra.Command{
		Use:   use + " <session-id> <source-type> <source-id>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])
			key := domain.SourceKey{SourceType: args[1], SourceID: args[2]}

			if _, err := app.loadApprovals(cmd.Context(), id, false); err != nil {
				return err
			}

			summary, err := app.approvals.UpdateApproval(cmd.Context(), id, key, status, reason, nil)
			if err != nil {
				return err
			}

			app.cache.Clear(cmd.Context(), approvalsCacheKey(id))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s: %d approved, %d rejected, %d pending\n",
				status, key.SourceType, key.SourceID,
				summary.ApprovedCount, summary.RejectedCount, summary.PendingCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the audit trail")
	if status == domain.ApprovalRejected {
		_ = cmd.MarkFlagRequired("reason")
	}
	return cmd
}

func newApprovalsFinalizeCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <session-id>",
		Short: "Finalize approvals and advance the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			if _, err := app.loadApprovals(cmd.Context(), id, true); err != nil {
				return err
			}

			snapshot, summary, err := app.approvals.Finalize(cmd.Context(), id)
			if err != nil {
				return err
			}

			app.cache.Clear(cmd.Context(), approvalsCacheKey(id))
			app.cache.Clear(cmd.Context(), sessionCacheKey(id))

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "finalized with %d of %d approvals; session now in phase %s\n",
				summary.ApprovedCount, summary.MinimumRequired, snapshot.CurrentPhase)
			return nil
		},
	}
}

func newApprovalsAuditCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <session-id>",
		Short: "Show the approval audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			entries, err := app.backend.AuditTrail(cmd.Context(), id)
			if err != nil {
				return err
			}

			view, err := progressrender.RenderAudit(entries)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

// approvalsExport is the YAML document written by `approvals export`.
type approvalsExport struct {
	SessionID string                  `yaml:"session_id"`
	Approvals []approvalExportEntry   `yaml:"approvals"`
	Summary   approvalsExportSummary  `yaml:"summary"`
	Audit     []approvalsExportAudit  `yaml:"audit,omitempty"`
}

type approvalExportEntry struct {
	SourceType string `yaml:"source_type"`
	SourceID   string `yaml:"source_id"`
	Status     string `yaml:"status"`
	Reason     string `yaml:"reason,omitempty"`
}

type approvalsExportSummary struct {
	Total           int  `yaml:"total"`
	Approved        int  `yaml:"approved"`
	Rejected        int  `yaml:"rejected"`
	Pending         int  `yaml:"pending"`
	MinimumRequired int  `yaml:"minimum_required"`
	CanProceed      bool `yaml:"can_proceed"`
}

type approvalsExportAudit struct {
	Timestamp      string `yaml:"timestamp"`
	SourceType     string `yaml:"source_type"`
	SourceID       string `yaml:"source_id"`
	Action         string `yaml:"action"`
	PreviousStatus string `yaml:"previous_status,omitempty"`
	Reason         string `yaml:"reason,omitempty"`
	UserID         string `yaml:"user_id,omitempty"`
}

func newApprovalsExportCmd(app *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export approvals, summary, and audit trail as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.SessionID(args[0])

			approvals, err := app.loadApprovals(cmd.Context(), id, true)
			if err != nil {
				return err
			}
			audit, err := app.backend.AuditTrail(cmd.Context(), id)
			if err != nil {
				return err
			}
			summary := app.approvals.Summary(id)

			doc := approvalsExport{
				SessionID: string(id),
				Summary: approvalsExportSummary{
					Total:           summary.Total,
					Approved:        summary.ApprovedCount,
					Rejected:        summary.RejectedCount,
					Pending:         summary.PendingCount,
					MinimumRequired: summary.MinimumRequired,
					CanProceed:      summary.CanProceed,
				},
			}
			for _, approval := range approvals {
				doc.Approvals = append(doc.Approvals, approvalExportEntry{
					SourceType: approval.SourceType,
					SourceID:   approval.SourceID,
					Status:     string(approval.Status),
					Reason:     approval.Reason,
				})
			}
			sort.Slice(doc.Approvals, func(i, j int) bool {
				if doc.Approvals[i].SourceType != doc.Approvals[j].SourceType {
					return doc.Approvals[i].SourceType < doc.Approvals[j].SourceType
				}
				return doc.Approvals[i].SourceID < doc.Approvals[j].SourceID
			})
			for _, entry := range audit {
				doc.Audit = append(doc.Audit, approvalsExportAudit{
					Timestamp:      entry.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
					SourceType:     entry.SourceType,
					SourceID:       entry.SourceID,
					Action:         string(entry.Action),
					PreviousStatus: string(entry.PreviousStatus),
					Reason:         entry.Reason,
					UserID:         entry.UserID,
				})
			}

			encoded, err := yaml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode approvals export: %w", err)
			}

			if output == "" {
				_, err = cmd.OutOrStdout().Write(encoded)
				return err
			}
			return os.WriteFile(output, encoded, 0o600)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
