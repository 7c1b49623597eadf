package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

// ApprovalService tracks per-source approval status, the append-only audit
// trail, and the minimum-approved gate for each session. Status changes are
// persisted through the backend first; local state commits only after the
// server confirms, because silently dropping a steward's decision would be
// a correctness bug, not a cosmetic one.
type ApprovalService struct {
	backend ports.WorkflowBackend
	clock   ports.Clock
	logger  *slog.Logger

	minimumRequired int
	userID          string

	mu       sync.Mutex
	sessions map[domain.SessionID]*approvalState
}

type approvalState struct {
	approvals     map[domain.SourceKey]domain.SourceApproval
	audit         []domain.AuditEntry
	feedbackCount int
}

type ApprovalOption func(*ApprovalService)

// WithMinimumRequired overrides the finalize gate. Values below one fall
// back to the default of one approved source.
func WithMinimumRequired(n int) ApprovalOption {
	return func(s *ApprovalService) {
		if n > 0 {
			s.minimumRequired = n
		}
	}
}

// WithUserID stamps audit entries with the acting steward's id.
func WithUserID(userID string) ApprovalOption {
	return func(s *ApprovalService) { s.userID = userID }
}

func WithApprovalLogger(logger *slog.Logger) ApprovalOption {
	return func(s *ApprovalService) { s.logger = logger }
}

func NewApprovalService(backend ports.WorkflowBackend, clock ports.Clock, opts ...ApprovalOption) *ApprovalService {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	s := &ApprovalService{
		backend:         backend,
		clock:           clock,
		logger:          slog.Default(),
		minimumRequired: domain.DefaultMinimumApprovals,
		sessions:        map[domain.SessionID]*approvalState{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize seeds the session's approval map from a recommendation list.
// Entries arriving without a decision default to pending; entries the
// server already decided keep their status, so a fresh process reconciles
// with decisions made elsewhere. Re-running on an already-initialized
// session is a no-op for existing entries: an approved or rejected source
// is never demoted back to pending.
func (s *ApprovalService) Initialize(_ context.Context, id domain.SessionID, recommendations []domain.SourceApproval) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(id)
	for _, rec := range recommendations {
		key := rec.Key()
		if _, exists := state.approvals[key]; exists {
			continue
		}
		if !rec.Status.Decided() {
			rec.Status = domain.ApprovalPending
		}
		state.approvals[key] = rec
	}
}

// UpdateApproval applies a steward decision. Only approved and rejected are
// valid: pending is an initialization state, not a decision. Re-deciding an
// already-decided source is allowed and overwrites the status; the audit
// entry records what it replaced.
func (s *ApprovalService) UpdateApproval(ctx context.Context, id domain.SessionID, key domain.SourceKey, status domain.ApprovalStatus, reason string, settings map[string]any) (domain.ApprovalSummary, error) {
	if !status.Decided() {
		return domain.ApprovalSummary{}, fmt.Errorf("%w: got %q", domain.ErrInvalidApprovalStatus, status)
	}

	serverSummary, err := s.backend.UpdateApproval(ctx, id, key, status, reason, settings)
	if err != nil {
		// No optimistic commit: local state is untouched on failure.
		return domain.ApprovalSummary{}, fmt.Errorf("persist approval %s/%s: %w", key.SourceType, key.SourceID, err)
	}

	s.mu.Lock()
	state := s.stateLocked(id)

	previous := domain.ApprovalPending
	approval, exists := state.approvals[key]
	if exists {
		previous = approval.Status
	} else {
		// Sources added after initialization default to pending wherever a
		// summary or gate reads them; materialize the entry on first touch.
		approval = domain.SourceApproval{SourceID: key.SourceID, SourceType: key.SourceType}
	}

	approval.Status = status
	approval.Reason = reason
	approval.ApprovedAt = s.clock.Now()
	approval.ApprovedBy = s.userID
	if settings != nil {
		approval.Settings = settings
	}
	state.approvals[key] = approval

	state.audit = append(state.audit, domain.AuditEntry{
		Timestamp:      s.clock.Now(),
		SourceID:       key.SourceID,
		SourceType:     key.SourceType,
		Action:         status,
		Reason:         reason,
		UserID:         s.userID,
		PreviousStatus: previous,
	})

	localSummary := domain.ComputeSummary(state.approvals, s.minimumRequired)
	s.mu.Unlock()

	if serverSummary.Total != localSummary.Total {
		s.logger.Warn("approvals: local state drifted from server summary",
			"session", id, "local_total", localSummary.Total, "server_total", serverSummary.Total)
	}

	return localSummary, nil
}

// SubmitFeedback records free-text steward feedback for the session. It
// never mutates approval status; requestReanalysis is a pass-through
// trigger for the backend to re-run discovery.
func (s *ApprovalService) SubmitFeedback(ctx context.Context, id domain.SessionID, feedback string, requestReanalysis bool) error {
	if err := s.backend.SubmitFeedback(ctx, id, feedback, requestReanalysis); err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}

	s.mu.Lock()
	s.stateLocked(id).feedbackCount++
	s.mu.Unlock()
	return nil
}

// Finalize advances the workflow past the recommendations phase. It is only
// permitted once the summary's gate is satisfied; below the minimum it
// fails with ErrMinimumApprovals naming the unmet threshold and performs no
// side effects.
func (s *ApprovalService) Finalize(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, domain.ApprovalSummary, error) {
	summary := s.Summary(id)
	if !summary.CanProceed {
		return domain.SessionSnapshot{}, summary, fmt.Errorf(
			"%w: %d approved of %d required", domain.ErrMinimumApprovals, summary.ApprovedCount, summary.MinimumRequired)
	}

	snapshot, serverSummary, err := s.backend.FinalizeApprovals(ctx, id)
	if err != nil {
		return domain.SessionSnapshot{}, summary, fmt.Errorf("finalize approvals: %w", err)
	}
	return snapshot, serverSummary, nil
}

// Summary recomputes the aggregate view from the full approval map. It is
// never cached: the summary is a view over the map, not a stored fact.
func (s *ApprovalService) Summary(id domain.SessionID) domain.ApprovalSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ComputeSummary(s.stateLocked(id).approvals, s.minimumRequired)
}

// Approvals returns the current approval entries for the session.
func (s *ApprovalService) Approvals(id domain.SessionID) []domain.SourceApproval {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.stateLocked(id)
	out := make([]domain.SourceApproval, 0, len(state.approvals))
	for _, approval := range state.approvals {
		out = append(out, approval)
	}
	return out
}

// AuditTrail returns a copy of the session's append-only audit log in
// append order.
func (s *ApprovalService) AuditTrail(id domain.SessionID) []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.stateLocked(id).audit...)
}

// FeedbackCount returns how many feedback entries were recorded locally.
func (s *ApprovalService) FeedbackCount(id domain.SessionID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(id).feedbackCount
}

func (s *ApprovalService) stateLocked(id domain.SessionID) *approvalState {
	state, ok := s.sessions[id]
	if !ok {
		state = &approvalState{approvals: map[domain.SourceKey]domain.SourceApproval{}}
		s.sessions[id] = state
	}
	return state
}
