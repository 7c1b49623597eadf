package devserver

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvetter/stewardflow/internal/adapters/backend/httpapi"
	"github.com/mvetter/stewardflow/internal/adapters/stream/sse"
	"github.com/mvetter/stewardflow/internal/domain"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithStepInterval(time.Millisecond),
	}, opts...)
	server := httptest.NewServer(New(opts...).Handler())
	t.Cleanup(server.Close)
	return server
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	client := httpapi.NewClient(server.URL)
	ctx := context.Background()

	snapshot, err := client.StartSession(ctx, "CARDIO-7", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseContextCapture, snapshot.CurrentPhase)

	snapshot, err = client.RunDiscovery(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDiscovery, snapshot.CurrentPhase)

	snapshot, err = client.GetSession(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDiscovery, snapshot.CurrentPhase)
	assert.True(t, snapshot.PhaseProgress[domain.PhaseContextCapture].Completed)

	_, err = client.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestApprovalFlowWithFinalizeGate(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	client := httpapi.NewClient(server.URL)
	ctx := context.Background()

	snapshot, err := client.StartSession(ctx, "ONCO-12", nil)
	require.NoError(t, err)
	id := snapshot.ID

	_, err = client.GenerateRecommendations(ctx, id)
	require.NoError(t, err)

	approvals, summary, err := client.ListApprovals(ctx, id)
	require.NoError(t, err)
	require.Len(t, approvals, 3)
	assert.Equal(t, 3, summary.PendingCount)
	assert.False(t, summary.CanProceed)

	// Gate holds while nothing is approved.
	_, _, err = client.FinalizeApprovals(ctx, id)
	require.Error(t, err)

	summary, err = client.UpdateApproval(ctx, id,
		domain.SourceKey{SourceType: "literature", SourceID: "pubmed-cardio-2019"},
		domain.ApprovalApproved, "", nil)
	require.NoError(t, err)
	assert.True(t, summary.CanProceed)

	summary, err = client.UpdateApproval(ctx, id,
		domain.SourceKey{SourceType: "registry", SourceID: "ctgov-nct0441"},
		domain.ApprovalRejected, "registry out of scope", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RejectedCount)

	finalSnapshot, finalSummary, err := client.FinalizeApprovals(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDeepResearch, finalSnapshot.CurrentPhase)
	assert.True(t, finalSummary.CanProceed)

	entries, err := client.AuditTrail(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.ApprovalPending, entries[0].PreviousStatus)
	assert.Equal(t, "registry out of scope", entries[1].Reason)
}

func TestStreamPlaysScriptToCompletion(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	client := httpapi.NewClient(server.URL)
	ctx := context.Background()

	snapshot, err := client.StartSession(ctx, "CARDIO-7", nil)
	require.NoError(t, err)

	subscriber := sse.NewSubscriber(server.URL,
		sse.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var mu sync.Mutex
	var types []domain.EventType
	var sawAgents bool
	done := make(chan struct{})

	dispose, err := subscriber.Subscribe(ctx, snapshot.ID, func(event domain.StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, event.Type())
		if progress, ok := event.(domain.ProgressEvent); ok && len(progress.AgentUpdates) > 0 {
			sawAgents = true
		}
		if event.Type() == domain.EventComplete {
			close(done)
		}
	}, func(err error) {
		t.Errorf("unexpected stream error: %v", err)
	})
	require.NoError(t, err)
	defer dispose()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream never completed")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, types, domain.EventPhaseChange)
	assert.Contains(t, types, domain.EventProgress)
	assert.Equal(t, domain.EventComplete, types[len(types)-1])
	assert.True(t, sawAgents)

	final, err := client.GetSession(ctx, snapshot.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseComplete, final.CurrentPhase)
	assert.Equal(t, 100, final.OverallProgress)
}

func TestFeedbackEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	client := httpapi.NewClient(server.URL)
	ctx := context.Background()

	snapshot, err := client.StartSession(ctx, "CARDIO-7", nil)
	require.NoError(t, err)

	require.NoError(t, client.SubmitFeedback(ctx, snapshot.ID, "focus on pediatric cohorts", true))
	assert.Error(t, client.SubmitFeedback(ctx, "missing", "x", false))
}

func TestMinimumRequiredOption(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, WithMinimumRequired(2))
	client := httpapi.NewClient(server.URL)
	ctx := context.Background()

	snapshot, err := client.StartSession(ctx, "CARDIO-7", nil)
	require.NoError(t, err)
	id := snapshot.ID

	_, err = client.GenerateRecommendations(ctx, id)
	require.NoError(t, err)

	summary, err := client.UpdateApproval(ctx, id,
		domain.SourceKey{SourceType: "literature", SourceID: "pubmed-cardio-2019"},
		domain.ApprovalApproved, "", nil)
	require.NoError(t, err)
	assert.False(t, summary.CanProceed)

	_, _, err = client.FinalizeApprovals(ctx, id)
	require.Error(t, err)
}
