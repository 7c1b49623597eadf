package ports

import (
	"context"

	"github.com/mvetter/stewardflow/internal/domain"
)

// WorkflowBackend is the remote workflow engine. It owns the agents and the
// phase progression; this client only reads snapshots, streams events, and
// submits steward decisions.
type WorkflowBackend interface {
	StartSession(ctx context.Context, studyName string, studyContext map[string]any) (domain.SessionSnapshot, error)
	GetSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)

	RunDiscovery(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)
	GenerateRecommendations(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)
	AcceptRecommendations(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)
	RunDeepResearch(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)
	CompleteSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)

	CancelSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)
	ResumeSession(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)

	ListApprovals(ctx context.Context, id domain.SessionID) ([]domain.SourceApproval, domain.ApprovalSummary, error)
	UpdateApproval(ctx context.Context, id domain.SessionID, key domain.SourceKey, status domain.ApprovalStatus, reason string, settings map[string]any) (domain.ApprovalSummary, error)
	FinalizeApprovals(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, domain.ApprovalSummary, error)
	AuditTrail(ctx context.Context, id domain.SessionID) ([]domain.AuditEntry, error)
	SubmitFeedback(ctx context.Context, id domain.SessionID, feedback string, requestReanalysis bool) error
}
