package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvetter/stewardflow/internal/domain"
)

func TestStartSession(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/onboarding/sessions", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req startSessionSchema
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "CARDIO-7", req.StudyName)
		assert.Equal(t, "phase III", req.StudyContext["trial_stage"])

		writeJSON(t, w, sessionSchema{
			SessionID:       "S1",
			CurrentPhase:    "context_capture",
			OverallProgress: 0,
			PhaseProgress: map[string]phaseProgressSchema{
				"context_capture": {Completed: false, Progress: 0},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	snapshot, err := client.StartSession(context.Background(), "CARDIO-7", map[string]any{"trial_stage": "phase III"})
	require.NoError(t, err)

	assert.Equal(t, domain.SessionID("S1"), snapshot.ID)
	assert.Equal(t, domain.PhaseContextCapture, snapshot.CurrentPhase)
	assert.Contains(t, snapshot.PhaseProgress, domain.PhaseContextCapture)
}

func TestSessionOperationsHitExpectedRoutes(t *testing.T) {
	t.Parallel()

	var gotMethod, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		writeJSON(t, w, sessionSchema{SessionID: "S1", CurrentPhase: "discovery"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	calls := []struct {
		name   string
		invoke func() (domain.SessionSnapshot, error)
		method string
		path   string
	}{
		{"get", func() (domain.SessionSnapshot, error) { return client.GetSession(ctx, "S1") },
			http.MethodGet, "/api/onboarding/sessions/S1"},
		{"discovery", func() (domain.SessionSnapshot, error) { return client.RunDiscovery(ctx, "S1") },
			http.MethodPost, "/api/onboarding/sessions/S1/discovery"},
		{"recommendations", func() (domain.SessionSnapshot, error) { return client.GenerateRecommendations(ctx, "S1") },
			http.MethodPost, "/api/onboarding/sessions/S1/recommendations"},
		{"accept", func() (domain.SessionSnapshot, error) { return client.AcceptRecommendations(ctx, "S1") },
			http.MethodPost, "/api/onboarding/sessions/S1/recommendations/accept"},
		{"deep research", func() (domain.SessionSnapshot, error) { return client.RunDeepResearch(ctx, "S1") },
			http.MethodPost, "/api/onboarding/sessions/S1/deep-research"},
		{"complete", func() (domain.SessionSnapshot, error) { return client.CompleteSession(ctx, "S1") },
			http.MethodPost, "/api/onboarding/sessions/S1/complete"},
		{"cancel", func() (domain.SessionSnapshot, error) { return client.CancelSession(ctx, "S1") },
			http.MethodPost, "/api/onboarding/sessions/S1/cancel"},
		{"resume", func() (domain.SessionSnapshot, error) { return client.ResumeSession(ctx, "S1") },
			http.MethodPost, "/api/onboarding/sessions/S1/resume"},
	}

	for _, call := range calls {
		snapshot, err := call.invoke()
		require.NoError(t, err, call.name)
		assert.Equal(t, call.method, gotMethod, call.name)
		assert.Equal(t, call.path, gotPath, call.name)
		assert.Equal(t, domain.SessionID("S1"), snapshot.ID, call.name)
	}
}

func TestListApprovals(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/onboarding/sessions/S1/approvals", r.URL.Path)
		writeJSON(t, w, approvalsSchema{
			Approvals: []approvalSchema{
				{SourceID: "pubmed-1", SourceType: "literature", Status: "pending"},
				{SourceID: "reg-9", SourceType: "registry", Status: "approved", ApprovedBy: "mvetter"},
			},
			Summary: summarySchema{Total: 2, ApprovedCount: 1, PendingCount: 1, MinimumRequired: 1, CanProceed: true},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	approvals, summary, err := client.ListApprovals(context.Background(), "S1")
	require.NoError(t, err)

	require.Len(t, approvals, 2)
	assert.Equal(t, domain.ApprovalApproved, approvals[1].Status)
	assert.Equal(t, "mvetter", approvals[1].ApprovedBy)
	assert.Equal(t, 2, summary.Total)
	assert.True(t, summary.CanProceed)
}

func TestUpdateApproval(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/api/onboarding/sessions/S1/approvals/literature/pubmed-1", r.URL.Path)

		var req updateApprovalSchema
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rejected", req.Status)
		assert.Equal(t, "out of scope population", req.Reason)

		writeJSON(t, w, map[string]any{
			"summary": summarySchema{Total: 1, RejectedCount: 1, MinimumRequired: 1},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	summary, err := client.UpdateApproval(context.Background(), "S1",
		domain.SourceKey{SourceType: "literature", SourceID: "pubmed-1"},
		domain.ApprovalRejected, "out of scope population", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RejectedCount)
}

func TestFinalizeApprovals(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/onboarding/sessions/S1/approvals/finalize", r.URL.Path)
		writeJSON(t, w, map[string]any{
			"session": sessionSchema{SessionID: "S1", CurrentPhase: "deep_research"},
			"summary": summarySchema{Total: 3, ApprovedCount: 2, RejectedCount: 1, MinimumRequired: 1, CanProceed: true},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	snapshot, summary, err := client.FinalizeApprovals(context.Background(), "S1")
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseDeepResearch, snapshot.CurrentPhase)
	assert.Equal(t, 2, summary.ApprovedCount)
}

func TestSubmitFeedback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/onboarding/sessions/S1/feedback", r.URL.Path)

		var req feedbackSchema
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "narrow to pediatric cohorts", req.Feedback)
		assert.True(t, req.RequestReanalysis)

		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.SubmitFeedback(context.Background(), "S1", "narrow to pediatric cohorts", true)
	require.NoError(t, err)
}

func TestNotFoundMapsToSessionNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestServerErrorIncludesBodyExcerpt(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "discovery agents unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.RunDiscovery(context.Background(), "S1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.Contains(t, err.Error(), "discovery agents unavailable")
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}
