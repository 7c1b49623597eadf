package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvetter/stewardflow/internal/domain"
)

func TestRenderProgressView(t *testing.T) {
	state := domain.NewProgressState()
	state.Phase = domain.PhaseDiscovery
	state.OverallProgress = 40
	state.IsConnected = true
	state.AgentUpdates = map[string]domain.AgentUpdate{
		"literature_agent": {Status: "searching PubMed", Progress: 65, ItemsFound: 12},
		"registry_agent":   {Status: "queued", Progress: 0},
	}
	state.Messages = []string{"Entered phase discovery"}

	output, err := Render(state, RenderOptions{SessionID: "sess-1", StudyName: "CARDIO-7"})
	require.NoError(t, err)

	assert.Contains(t, output, "Onboarding: CARDIO-7 (sess-1)")
	assert.Contains(t, output, "stream: live")
	assert.Contains(t, output, "[x] context capture")
	assert.Contains(t, output, "[>] discovery")
	assert.Contains(t, output, "[ ] recommendations")
	assert.Contains(t, output, "agents: 2")
	assert.Contains(t, output, "literature_agent")
	assert.Contains(t, output, "searching PubMed")
	assert.Contains(t, output, "(12 found)")
	assert.Contains(t, output, "Entered phase discovery")
	assert.Contains(t, output, " 40%")
}

func TestRenderCompleteStateMarksAllPhases(t *testing.T) {
	state := domain.NewProgressState()
	state.Phase = domain.PhaseComplete
	state.OverallProgress = 100
	state.IsComplete = true

	output, err := Render(state, RenderOptions{SessionID: "sess-1"})
	require.NoError(t, err)

	assert.Contains(t, output, "[x] complete")
	assert.NotContains(t, output, "[>]")
	assert.Contains(t, output, "Onboarding complete.")
	assert.Contains(t, output, "stream: disconnected")
}

func TestRenderShowsErrorLine(t *testing.T) {
	state := domain.NewProgressState()
	state.Error = "discovery agents unavailable"

	output, err := Render(state, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, output, "error: discovery agents unavailable")
}

func TestRenderTrimsMessageTail(t *testing.T) {
	state := domain.NewProgressState()
	state.Messages = []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7"}

	output, err := Render(state, RenderOptions{})
	require.NoError(t, err)
	assert.NotContains(t, output, "m1")
	assert.NotContains(t, output, "m2")
	assert.Contains(t, output, "m3")
	assert.Contains(t, output, "m7")
}

func TestRenderSummaryReadyAndBlocked(t *testing.T) {
	ready := domain.ApprovalSummary{
		Total:           3,
		ApprovedCount:   2,
		RejectedCount:   1,
		ByType:          map[string]domain.TypeCounts{"literature": {Approved: 2, Rejected: 1}},
		CanProceed:      true,
		MinimumRequired: 1,
	}

	output, err := RenderSummary(ready)
	require.NoError(t, err)
	assert.Contains(t, output, "total: 3  approved: 2  rejected: 1  pending: 0")
	assert.Contains(t, output, "literature")
	assert.Contains(t, output, "finalize gate: 2 of 1 approvals: ready")

	blocked := domain.ApprovalSummary{Total: 2, PendingCount: 2, MinimumRequired: 1,
		ByType: map[string]domain.TypeCounts{"registry": {Pending: 2}}}

	output, err = RenderSummary(blocked)
	require.NoError(t, err)
	assert.Contains(t, output, "finalize gate: 0 of 1 approvals: blocked")
}

func TestRenderSummaryEmpty(t *testing.T) {
	output, err := RenderSummary(domain.ApprovalSummary{MinimumRequired: 1})
	require.NoError(t, err)
	assert.Contains(t, output, "No recommended sources yet.")
}

func TestRenderAuditTrail(t *testing.T) {
	when := time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC)
	output, err := RenderAudit([]domain.AuditEntry{
		{
			Timestamp:      when,
			SourceID:       "pubmed-1",
			SourceType:     "literature",
			Action:         domain.ApprovalApproved,
			UserID:         "mvetter",
			PreviousStatus: domain.ApprovalPending,
		},
		{
			Timestamp:      when.Add(time.Minute),
			SourceID:       "pubmed-1",
			SourceType:     "literature",
			Action:         domain.ApprovalRejected,
			Reason:         "duplicate cohort",
			UserID:         "mvetter",
			PreviousStatus: domain.ApprovalApproved,
		},
	})
	require.NoError(t, err)

	assert.Contains(t, output, "entries: 2")
	assert.Contains(t, output, "literature/pubmed-1")
	assert.Contains(t, output, "pending → approved")
	assert.Contains(t, output, "approved → rejected")
	assert.Contains(t, output, "reason: duplicate cohort")
	assert.Contains(t, output, "by mvetter")
}

func TestRenderAuditEmpty(t *testing.T) {
	output, err := RenderAudit(nil)
	require.NoError(t, err)
	assert.Contains(t, output, "No approval decisions recorded.")
}
